package command

import (
	"github.com/sandevgo/brain/internal/core"
)

func NewCommands(
	consent core.ConsentFlow,
	tokens TokenAdmin,
	memory MemoryReader,
	desk AgendaDesk,
) []core.Command {
	return []core.Command{
		NewConnectCommand(consent),
		NewStatusCommand(tokens, memory),
		NewDisconnectCommand(tokens),
		NewRecallCommand(memory),
		NewTodayCommand(desk),
		NewTasksCommand(desk),
		NewDoneCommand(desk),
		NewCancelCommand(desk),
		NewMoveCommand(desk),
	}
}

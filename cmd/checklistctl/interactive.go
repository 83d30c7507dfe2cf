package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"checklist/api/internal/mirror"
)

const interactiveHelp = `commands:
  cat NAME        create a category
  rmcat ID        delete a category and its items
  select ID       show a category's items
  clear           clear the selection
  add NAME [@BY]  add an item to the selected category
  done ID         mark an item done
  undo ID         mark an item not done
  rm ID           delete an item
`

// runCommand applies one interactive command to the mirror. Mutations are
// shown at once and settle in the background; failures arrive as notices.
func runCommand(ctx context.Context, m *mirror.Mirror, line string) (*mirror.Task, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	verb, args := fields[0], fields[1:]

	idArg := func() (int64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("%s takes one id", verb)
		}
		return parseIDArg(args[0])
	}

	switch verb {
	case "cat":
		if len(args) == 0 {
			return nil, fmt.Errorf("cat takes a name")
		}
		return m.SubmitCreateCategory(strings.Join(args, " ")), nil
	case "rmcat":
		id, err := idArg()
		if err != nil {
			return nil, err
		}
		return m.SubmitDeleteCategory(id), nil
	case "select":
		id, err := idArg()
		if err != nil {
			return nil, err
		}
		return nil, m.Select(ctx, id)
	case "clear":
		m.ClearSelection()
		return nil, nil
	case "add":
		var by string
		if n := len(args); n > 1 && strings.HasPrefix(args[n-1], "@") {
			by = strings.TrimPrefix(args[n-1], "@")
			args = args[:n-1]
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("add takes a name")
		}
		return m.SubmitCreateItem(strings.Join(args, " "), by), nil
	case "done", "undo":
		id, err := idArg()
		if err != nil {
			return nil, err
		}
		return m.SubmitSetCompletion(id, verb == "done"), nil
	case "rm":
		id, err := idArg()
		if err != nil {
			return nil, err
		}
		return m.SubmitDeleteItem(id), nil
	}
	return nil, fmt.Errorf("unknown command %q", verb)
}

// readCommands feeds lines from in to the mirror until ctx is done or in
// is exhausted.
func readCommands(ctx context.Context, m *mirror.Mirror, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "help" {
				fmt.Fprint(out, interactiveHelp)
				continue
			}
			if _, err := runCommand(ctx, m, line); err != nil {
				fmt.Fprintln(out, errorStyle.Render(err.Error()))
			}
		}
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/devstack/cmd/devstack/internal/safety"
	"github.com/AleutianAI/devstack/pkg/ux"
)

// Navigation is an explicit menu outcome. Menus return a value, not a
// sentinel error: "go back" is a normal result of showing a menu.
type Navigation int

const (
	// NavContinue proceeds with the selected item.
	NavContinue Navigation = iota

	// NavBack returns to the previous menu.
	NavBack

	// NavExit leaves the wizard entirely.
	NavExit
)

// String returns the navigation name for logs and tests.
func (n Navigation) String() string {
	switch n {
	case NavContinue:
		return "continue"
	case NavBack:
		return "back"
	case NavExit:
		return "exit"
	default:
		return "unknown"
	}
}

const (
	menuChoiceExit = "__exit__"
)

// runWizard drives the interactive tool menu until the user exits.
func runWizard(ctx context.Context, managers []ToolManager, force bool) error {
	ux.Title("devstack setup")
	ux.Muted("Every change is backed up first and rolled back on failure.")

	for {
		manager, nav, err := selectTool(managers)
		if err != nil {
			return err
		}
		if nav == NavExit {
			return nil
		}

		nav, err = confirmSetup(manager)
		if err != nil {
			return err
		}
		if nav == NavBack {
			continue
		}

		applyTool(ctx, manager, force)
	}
}

// selectTool shows the main menu.
func selectTool(managers []ToolManager) (ToolManager, Navigation, error) {
	options := make([]huh.Option[string], 0, len(managers)+1)
	for _, m := range managers {
		options = append(options, huh.NewOption(
			fmt.Sprintf("%s: %s", m.Name(), m.Description()), m.Name()))
	}
	options = append(options, huh.NewOption("Exit", menuChoiceExit))

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Which tool should devstack configure?").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, NavExit, nil
		}
		return nil, NavExit, err
	}
	if choice == menuChoiceExit {
		return nil, NavExit, nil
	}

	manager, err := managerByName(managers, choice)
	if err != nil {
		return nil, NavExit, err
	}
	return manager, NavContinue, nil
}

// confirmSetup asks before mutating the host. Declining goes back to
// the menu, not out of the wizard.
func confirmSetup(manager ToolManager) (Navigation, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Apply the %s configuration now?", manager.Name())).
			Description("Target files are snapshotted before any change.").
			Affirmative("Apply").
			Negative("Back").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return NavBack, nil
		}
		return NavBack, err
	}
	if !confirmed {
		return NavBack, nil
	}
	return NavContinue, nil
}

// applyTool runs one manager and reports the outcome.
func applyTool(ctx context.Context, manager ToolManager, force bool) {
	err := manager.Setup(ctx, force)
	if err == nil {
		ux.Success(fmt.Sprintf("%s configured", manager.Name()))
		return
	}
	reportSetupError(manager.Name(), err)
}

// reportSetupError renders a safety error for the terminal.
func reportSetupError(tool string, err error) {
	var partial *safety.RollbackPartialError
	if errors.As(err, &partial) {
		ux.WarningBox("Manual attention required",
			fmt.Sprintf("%s failed and these paths could not be restored:\n%s",
				tool, joinLines(partial.FailedPaths)))
		return
	}

	var action *safety.ActionError
	if errors.As(err, &action) && action.RolledBack {
		ux.Error(fmt.Sprintf("%s failed; all changes were rolled back: %v", tool, action.Err))
		return
	}

	var backup *safety.BackupError
	if errors.As(err, &backup) {
		ux.Error(fmt.Sprintf("%s was not touched: backup of %s failed: %v", tool, backup.Path, backup.Err))
		return
	}

	ux.Error(fmt.Sprintf("%s failed: %v", tool, err))
}

func joinLines(lines []string) string {
	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += "  " + line
	}
	return out
}

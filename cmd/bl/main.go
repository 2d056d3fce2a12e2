package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"boardline/internal/app"
	"boardline/internal/config"
	"boardline/internal/db"
	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/migrate"
	"boardline/internal/repo"
	"boardline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Boardline CLI",
	Long: `Boardline tracks team work on kanban boards.
Core concepts:
- Workspace: your .boardline directory with only the database; configs are stored in the DB and imported explicitly.
- Organization: the tenant that owns boards, templates, and members with owner/editor/viewer roles.
- Boards: columns (status options) plus optional swimlanes (section options); the first column receives new tasks, terminal columns mean done.
- Tasks: work items with subtasks, assignees, due dates, and drag-and-drop ordering; completing a parent asks about open subtasks first.
- Recurring tasks: a rule on a task spawns the next occurrence the moment the current one lands in a terminal column.
- Templates: snapshot a board's columns and tasks, then stamp out new boards with dates shifted to an anchor.
- Favorites and notifications: pin what you care about, get told when you are assigned or a due date closes in.
- Event log: diary of changes, view with 'bl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOARDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("org", "", "organization id (overrides the single-org default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(favoriteCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgListCmd())
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgShowCmd())
	org.AddCommand(orgUpdateCmd())
	org.AddCommand(orgUseCmd())
	return org
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrgs(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func orgCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = id
			}
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id))
			o, err := e.CreateOrg(cmd.Context(), id, name, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(o)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "organization id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func orgShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				o, err := e.Repo.GetOrg(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
}

func orgUpdateCmd() *cobra.Command {
	var name, status string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the active organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				if err := e.Repo.UpdateOrg(ctx, orgID, name, status); err != nil {
					return err
				}
				o, err := e.Repo.GetOrg(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&status, "status", "", "status (active, archived)")
	return cmd
}

func orgUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the default organization for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID := strings.TrimSpace(args[0])
			if orgID == "" {
				return fmt.Errorf("organization id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "BOARDLINE_ORG", orgID); err != nil {
				return err
			}
			fmt.Printf("Set BOARDLINE_ORG=%s in %s/.env\n", orgID, workspace)
			return nil
		},
	}
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage organization members"}
	m.AddCommand(memberListCmd())
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberRemoveCmd())
	return m
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				items, err := e.Repo.ListMembers(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func memberAddCmd() *cobra.Command {
	var actor, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				m, err := e.AddMember(ctx, orgID, actor, role, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "editor", "role (owner, editor, viewer)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.RemoveMember(ctx, orgID, actor, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func boardCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "board",
		Short: "Manage boards",
		Long:  "Boards hold ordered status columns and optional sections. New tasks land in the first column; moving a task into a terminal column completes it.",
	}
	b.AddCommand(boardCreateCmd())
	b.AddCommand(boardListCmd())
	b.AddCommand(boardShowCmd())
	b.AddCommand(boardUpdateCmd())
	b.AddCommand(boardDeleteCmd())
	b.AddCommand(boardStatusCmd())
	b.AddCommand(statusOptionCmd())
	b.AddCommand(sectionOptionCmd())
	return b
}

func boardCreateCmd() *cobra.Command {
	var opts engine.BoardCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				if opts.OrgID == "" {
					opts.OrgID = orgID
				}
				b, err := e.CreateBoard(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "board id (optional)")
	cmd.Flags().StringVar(&opts.OrgID, "org-id", "", "organization id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func boardListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				items, err := e.Repo.ListBoards(ctx, repo.BoardFilters{OrgID: orgID, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Created"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Name, b.Status, b.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, archived)")
	return cmd
}

func boardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a board with its columns and sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				b, err := e.Repo.GetBoard(ctx, id)
				if err != nil {
					return err
				}
				statuses, err := e.Repo.ListStatusOptions(ctx, b.ID)
				if err != nil {
					return err
				}
				sections, err := e.Repo.ListSectionOptions(ctx, b.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"board":           b,
					"status_options":  statuses,
					"section_options": sections,
				})
			})
		},
	}
}

func boardUpdateCmd() *cobra.Command {
	var name, status, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.BoardUpdateOptions{
				ID:      args[0],
				Name:    name,
				Status:  status,
				ActorID: viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				b, err := e.UpdateBoard(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&status, "status", "", "status (active, archived)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func boardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a board and everything on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.DeleteBoard(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
}

func boardStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show task counts per column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				b, err := e.Repo.GetBoard(ctx, id)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountTasksByStatus(ctx, b.ID)
				if err != nil {
					return err
				}
				statuses, err := e.Repo.ListStatusOptions(ctx, b.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"board_id": b.ID, "status": b.Status, "task_counts": counts})
				}
				fmt.Printf("Board: %s (%s)\n", b.Name, b.Status)
				for _, s := range statuses {
					marker := ""
					if s.IsTerminal {
						marker = " [terminal]"
					}
					fmt.Printf("  %s%s: %d\n", s.Label, marker, counts[s.ID])
				}
				return nil
			})
		},
	}
}

func statusOptionCmd() *cobra.Command {
	so := &cobra.Command{Use: "status-option", Short: "Manage board columns"}

	var addBoard, addLabel, addColor string
	var addTerminal bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Append a column",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				opt, err := e.AddStatusOption(ctx, engine.StatusOptionOptions{
					BoardID:    addBoard,
					Label:      addLabel,
					Color:      addColor,
					IsTerminal: addTerminal,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(opt)
			})
		},
	}
	add.Flags().StringVar(&addBoard, "board", "", "board id")
	add.Flags().StringVar(&addLabel, "label", "", "column label")
	add.Flags().StringVar(&addColor, "color", "", "color")
	add.Flags().BoolVar(&addTerminal, "terminal", false, "terminal column")
	_ = add.MarkFlagRequired("board")
	_ = add.MarkFlagRequired("label")
	so.AddCommand(add)

	var upLabel, upColor string
	var upTerminal bool
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or recolor a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var terminalPtr *bool
			if cmd.Flags().Changed("terminal") {
				terminalPtr = &upTerminal
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				opt, err := e.UpdateStatusOption(ctx, args[0], upLabel, upColor, terminalPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(opt)
			})
		},
	}
	update.Flags().StringVar(&upLabel, "label", "", "column label")
	update.Flags().StringVar(&upColor, "color", "", "color")
	update.Flags().BoolVar(&upTerminal, "terminal", false, "terminal column")
	so.AddCommand(update)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an empty column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.DeleteStatusOption(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	so.AddCommand(del)

	var reorderBoard string
	var reorderIDs []string
	reorder := &cobra.Command{
		Use:   "reorder",
		Short: "Reorder a board's columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.ReorderStatusOptions(ctx, reorderBoard, reorderIDs, viper.GetString("actor-id"))
			})
		},
	}
	reorder.Flags().StringVar(&reorderBoard, "board", "", "board id")
	reorder.Flags().StringArrayVar(&reorderIDs, "id", []string{}, "option id in target order (repeatable)")
	_ = reorder.MarkFlagRequired("board")
	so.AddCommand(reorder)

	return so
}

func sectionOptionCmd() *cobra.Command {
	so := &cobra.Command{Use: "section-option", Short: "Manage board sections"}

	var addBoard, addLabel, addColor string
	add := &cobra.Command{
		Use:   "add",
		Short: "Append a section",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				opt, err := e.AddSectionOption(ctx, addBoard, addLabel, addColor, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(opt)
			})
		},
	}
	add.Flags().StringVar(&addBoard, "board", "", "board id")
	add.Flags().StringVar(&addLabel, "label", "", "section label")
	add.Flags().StringVar(&addColor, "color", "", "color")
	_ = add.MarkFlagRequired("board")
	_ = add.MarkFlagRequired("label")
	so.AddCommand(add)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a section (tasks keep running, unsectioned)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.DeleteSectionOption(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	so.AddCommand(del)

	return so
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks live on a board in one column, optionally inside a section, optionally under a parent. Recurring rules spawn the next occurrence when the current one completes.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskReorderCmd())
	task.AddCommand(taskSeriesCmd())
	task.AddCommand(taskTreeCmd())
	task.AddCommand(taskBulkCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.BoardID, "board", "", "board id")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.StatusID, "status", "", "status option id (defaults to the first column)")
	cmd.Flags().StringVar(&opts.SectionID, "section", "", "section option id")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee id")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.RecurringJSON, "recurring-json", "", "recurrence rule JSON")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Section", "Assignee", "Due"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.StatusID, deref(t.SectionID), deref(t.AssigneeID), deref(t.DueDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.BoardID, "board", "", "board id")
	cmd.Flags().StringVar(&f.StatusID, "status", "", "status option filter")
	cmd.Flags().StringVar(&f.SectionID, "section", "", "section option filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent task id")
	cmd.Flags().StringVar(&f.DueBefore, "due-before", "", "due on or before (YYYY-MM-DD)")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, section, assign, due, recurring string
	var clearRecurring bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ID:      args[0],
				Title:   title,
				ActorID: viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("section") {
				opts.SetSection = &section
			}
			if cmd.Flags().Changed("assign") {
				opts.Assign = &assign
			}
			if cmd.Flags().Changed("due") {
				opts.SetDueDate = &due
			}
			if clearRecurring {
				empty := ""
				opts.SetRecurring = &empty
			} else if cmd.Flags().Changed("recurring-json") {
				opts.SetRecurring = &recurring
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&section, "section", "", "section option id (empty clears)")
	cmd.Flags().StringVar(&assign, "assign", "", "assignee id (empty clears)")
	cmd.Flags().StringVar(&due, "due", "", "due date YYYY-MM-DD (empty clears)")
	cmd.Flags().StringVar(&recurring, "recurring-json", "", "recurrence rule JSON")
	cmd.Flags().BoolVar(&clearRecurring, "clear-recurring", false, "detach the recurrence rule")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.DeleteTask(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
}

func taskMoveCmd() *cobra.Command {
	var toStatus string
	var index int
	var confirmSubtasks, completeSubtasks bool
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move task to a column, optionally at a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskMoveOptions{
				ID:               args[0],
				ToStatusID:       toStatus,
				ConfirmSubtasks:  confirmSubtasks,
				CompleteSubtasks: completeSubtasks,
				ActorID:          viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("index") {
				opts.Index = &index
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				res, err := e.MoveTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&toStatus, "to-status", "", "target status option id")
	cmd.Flags().IntVar(&index, "index", 0, "target slot in the column (defaults to the end)")
	cmd.Flags().BoolVar(&confirmSubtasks, "confirm-subtasks", false, "complete even with open subtasks")
	cmd.Flags().BoolVar(&completeSubtasks, "complete-subtasks", false, "complete open subtasks along with the parent")
	_ = cmd.MarkFlagRequired("to-status")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	var confirmSubtasks bool
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Move task to the first terminal column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				res, err := e.CompleteTask(ctx, id, confirmSubtasks, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().BoolVar(&confirmSubtasks, "confirm-subtasks", false, "complete even with open subtasks")
	return cmd
}

func taskReorderCmd() *cobra.Command {
	var board, status string
	var ids []string
	cmd := &cobra.Command{
		Use:   "reorder",
		Short: "Reorder one column's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.ReorderTasks(ctx, board, status, ids, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "board id")
	cmd.Flags().StringVar(&status, "status", "", "status option id")
	cmd.Flags().StringArrayVar(&ids, "id", []string{}, "task id in target order (repeatable)")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func taskSeriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "series <id>",
		Short: "List the recurrence series a task belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				seriesID := t.ID
				if t.SeriesID != nil {
					seriesID = *t.SeriesID
				}
				items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{SeriesID: seriesID})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func taskTreeCmd() *cobra.Command {
	var board string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show a board's tasks as parent/subtask trees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{BoardID: board})
				if err != nil {
					return err
				}
				nodes := map[string][]domain.Task{}
				var roots []domain.Task
				for _, t := range tasks {
					if t.ParentID != nil {
						nodes[*t.ParentID] = append(nodes[*t.ParentID], t)
					} else {
						roots = append(roots, t)
					}
				}
				if viper.GetBool("json") {
					type Node struct {
						Task     domain.Task `json:"task"`
						Children []Node      `json:"children,omitempty"`
					}
					var build func(t domain.Task) Node
					build = func(t domain.Task) Node {
						var childNodes []Node
						for _, c := range nodes[t.ID] {
							childNodes = append(childNodes, build(c))
						}
						return Node{Task: t, Children: childNodes}
					}
					var treeNodes []Node
					for _, r := range roots {
						treeNodes = append(treeNodes, build(r))
					}
					return printJSON(treeNodes)
				}
				for i, r := range roots {
					printTaskTree(r, nodes, "", i == len(roots)-1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "board id")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func taskBulkCmd() *cobra.Command {
	bulk := &cobra.Command{Use: "bulk", Short: "Bulk task operations"}

	var upIDs []string
	var upStatus, upSection, upAssign string
	var upConfirm bool
	update := &cobra.Command{
		Use:   "update",
		Short: "Apply one edit to many tasks atomically",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.BulkUpdateOptions{
				IDs:             upIDs,
				SetStatusID:     upStatus,
				ConfirmSubtasks: upConfirm,
				ActorID:         viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("section") {
				opts.SetSectionID = &upSection
			}
			if cmd.Flags().Changed("assign") {
				opts.Assign = &upAssign
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				tasks, err := e.BulkUpdateTasks(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(tasks)
			})
		},
	}
	update.Flags().StringArrayVar(&upIDs, "id", []string{}, "task id (repeatable)")
	update.Flags().StringVar(&upStatus, "to-status", "", "target status option id")
	update.Flags().StringVar(&upSection, "section", "", "section option id (empty clears)")
	update.Flags().StringVar(&upAssign, "assign", "", "assignee id (empty clears)")
	update.Flags().BoolVar(&upConfirm, "confirm-subtasks", false, "complete parents even with open subtasks")
	bulk.AddCommand(update)

	var delIDs []string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete many tasks atomically",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.BulkDeleteTasks(ctx, delIDs, viper.GetString("actor-id"))
			})
		},
	}
	del.Flags().StringArrayVar(&delIDs, "id", []string{}, "task id (repeatable)")
	bulk.AddCommand(del)

	var dupIDs []string
	dup := &cobra.Command{
		Use:   "duplicate",
		Short: "Duplicate many tasks atomically",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				copies, err := e.BulkDuplicateTasks(ctx, dupIDs, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(copies)
			})
		},
	}
	dup.Flags().StringArrayVar(&dupIDs, "id", []string{}, "task id (repeatable)")
	bulk.AddCommand(dup)

	return bulk
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{
		Use:   "template",
		Short: "Manage board templates",
		Long:  "Templates snapshot a board's columns, sections, and open tasks with due dates stored relative to capture day. Applying one shifts those dates to an anchor.",
	}
	tpl.AddCommand(templateCaptureCmd())
	tpl.AddCommand(templateListCmd())
	tpl.AddCommand(templateShowCmd())
	tpl.AddCommand(templateDeleteCmd())
	tpl.AddCommand(templateApplyCmd())
	tpl.AddCommand(templateBoardCmd())
	return tpl
}

func templateCaptureCmd() *cobra.Command {
	var board, name, description string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a board as a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				tmpl, err := e.CaptureTemplate(ctx, engine.TemplateCaptureOptions{
					BoardID:     board,
					Name:        name,
					Description: description,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(tmpl)
			})
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "board id")
	cmd.Flags().StringVar(&name, "name", "", "template name")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("board")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				items, err := e.Repo.ListTemplates(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func templateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				tmpl, err := e.Repo.GetTemplate(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(tmpl)
			})
		},
	}
}

func templateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.DeleteTemplate(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
}

func templateApplyCmd() *cobra.Command {
	var board, anchor string
	var statusMap, sectionMap map[string]string
	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Expand a template onto an existing board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				res, err := e.ApplyTemplate(ctx, engine.TemplateApplyOptions{
					TemplateID: id,
					BoardID:    board,
					AnchorDate: anchor,
					StatusMap:  statusMap,
					SectionMap: sectionMap,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				for _, w := range res.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&board, "board", "", "target board id")
	cmd.Flags().StringVar(&anchor, "anchor", "", "anchor date YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringToStringVar(&statusMap, "map-status", nil, "template status id=board status id (repeatable)")
	cmd.Flags().StringToStringVar(&sectionMap, "map-section", nil, "template section id=board section id (repeatable)")
	_ = cmd.MarkFlagRequired("board")
	return cmd
}

func templateBoardCmd() *cobra.Command {
	var name, anchor string
	cmd := &cobra.Command{
		Use:   "board <id>",
		Short: "Create a new board from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				res, err := e.CreateBoardFromTemplate(ctx, engine.BoardFromTemplateOptions{
					TemplateID: id,
					OrgID:      orgID,
					Name:       name,
					AnchorDate: anchor,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				for _, w := range res.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new board name")
	cmd.Flags().StringVar(&anchor, "anchor", "", "anchor date YYYY-MM-DD (defaults to today)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func favoriteCmd() *cobra.Command {
	fav := &cobra.Command{Use: "favorite", Short: "Manage favorites"}

	var kind string
	add := &cobra.Command{
		Use:   "add <entity-id>",
		Short: "Mark a board or task as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				f, err := e.AddFavorite(ctx, viper.GetString("actor-id"), kind, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	add.Flags().StringVar(&kind, "kind", "board", "entity kind (board, task)")
	fav.AddCommand(add)

	var rmKind string
	rm := &cobra.Command{
		Use:   "remove <entity-id>",
		Short: "Remove a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.RemoveFavorite(ctx, viper.GetString("actor-id"), rmKind, id)
			})
		},
	}
	rm.Flags().StringVar(&rmKind, "kind", "board", "entity kind (board, task)")
	fav.AddCommand(rm)

	var listKind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List your favorites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				items, err := e.Repo.ListFavorites(ctx, viper.GetString("actor-id"), listKind)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().StringVar(&listKind, "kind", "", "entity kind filter (board, task)")
	fav.AddCommand(list)

	return fav
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Short: "Manage notifications"}

	var kind string
	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				items, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{
					ActorID:    viper.GetString("actor-id"),
					Kind:       kind,
					UnreadOnly: unread,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Message", "Read", "Created"})
				for _, item := range items {
					read := ""
					if item.ReadAt != nil {
						read = *item.ReadAt
					}
					tw.AppendRow(table.Row{item.ID, item.Kind, item.Message, read, item.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "kind filter (assigned, due_soon, overdue)")
	list.Flags().BoolVar(&unread, "unread", false, "unread only")
	list.Flags().IntVar(&limit, "n", 50, "max notifications")
	n.AddCommand(list)

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.MarkNotificationRead(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	n.AddCommand(read)

	return n
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect organization config",
		Long:  "Config is the rulebook stored in the DB: default board columns and sections, reminder horizon, and webhook endpoints. Import from boardline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active organization's config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				msg := ""
				if err != nil {
					msg = err.Error()
				}
				return printJSON(map[string]any{"ok": err == nil, "error": msg})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import organization config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				target := cfg.Org.ID
				if target == "" {
					target = orgID
				}
				if err := e.Repo.UpsertOrgConfig(ctx, target, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default boardline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			orgID := viper.GetString("org")
			if orgID == "" {
				orgID = app.DefaultOrgID
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: board changes, task moves, spawned occurrences, template applications, and more.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var board, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, orgID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, orgID, board, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&board, "board", "", "board filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the current actor",
		Long:  "The raw key is printed once and only its hash is stored. Pass it to the server in the X-Api-Key header.",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := "bl_" + strings.ReplaceAll(uuid.New().String(), "-", "")
			key := domain.APIKey{
				ID:      uuid.New().String(),
				ActorID: viper.GetString("actor-id"),
				Name:    name,
				KeyHash: repo.HashAPIKey(raw),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": raw})
				}
				fmt.Printf("API key %s created for %s\n", key.ID, key.ActorID)
				fmt.Printf("Key (save it now, it is not stored): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := viper.GetString("actor-id")
			if all {
				actor = ""
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.ActorID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every actor's keys")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			orgID, cfg, err := app.ResolveOrgAndConfig(cmd.Context(), viper.GetString("org"), viper.GetString("actor-id"), engine.New(conn, nil))
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("BOARDLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("BOARDLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			if cfg.RemindersEnabled() {
				reminders := &server.Reminders{Engine: e}
				if err := reminders.Start(); err != nil {
					return err
				}
				defer reminders.Stop()
			}
			server.StartWebhookDispatcher(e, orgID)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Boardline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor-header", false, "accept X-Actor-Id without a token (local use only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	orgID, cfg, err := app.ResolveOrgAndConfig(ctx, viper.GetString("org"), viper.GetString("actor-id"), engine.New(conn, nil))
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e, orgID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func printTaskTree(t domain.Task, children map[string][]domain.Task, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	fmt.Printf("%s%s%s [%s]\n", prefix, connector, t.Title, t.StatusID)
	for i, c := range children[t.ID] {
		printTaskTree(c, children, newPrefix, i == len(children[t.ID])-1)
	}
}

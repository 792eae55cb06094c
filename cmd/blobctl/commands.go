package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/config"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDocumentID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid document ID %q: %w", raw, err)
	}
	return id, nil
}

// NewPutCommand creates the put command
func NewPutCommand(app *App) *cobra.Command {
	var docID, field, mimeType string

	cmd := &cobra.Command{
		Use:   "put <file|->",
		Short: "Write a blob to the hot tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			wc := blobtier.WriteContext{
				Content:   data,
				DocID:     docID,
				FieldPath: field,
				MimeType:  mimeType,
			}
			if args[0] != "-" {
				wc.Filename = filepath.Base(args[0])
			}

			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				var key string
				err := txn.Run(ctx, func(ctx context.Context) error {
					var err error
					key, err = rt.Hot.WriteBlob(ctx, wc)
					return err
				})
				if err != nil {
					return err
				}
				return app.printJSON(blobtier.NewBlobRef(key, wc))
			})
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "owner document id (required for record keys)")
	cmd.Flags().StringVar(&field, "field", "content", "field path within the owner document")
	cmd.Flags().StringVar(&mimeType, "mime-type", "application/octet-stream", "content MIME type")
	return cmd
}

// NewGetCommand creates the get command
func NewGetCommand(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a blob from the hot tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				data, err := rt.Hot.Read(ctx, args[0])
				if err != nil {
					return err
				}
				if output != "" {
					return os.WriteFile(output, data, 0644)
				}
				_, err = app.Out.Write(data)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the blob to a file instead of stdout")
	return cmd
}

// NewCreateCommand creates the create command
func NewCreateCommand(app *App) *cobra.Command {
	var name, mimeType string

	cmd := &cobra.Command{
		Use:   "create <file|->",
		Short: "Create a document whose main content is the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			req := coldstorage.CreateDocumentRequest{Name: name, Content: data, MimeType: mimeType}
			if args[0] != "-" {
				req.Filename = filepath.Base(args[0])
				if req.Name == "" {
					req.Name = req.Filename
				}
			}

			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				var doc *coldstorage.Document
				err := txn.Run(ctx, func(ctx context.Context) error {
					var err error
					doc, err = rt.Service.CreateDocument(ctx, req)
					return err
				})
				if err != nil {
					return err
				}
				return app.printJSON(doc)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "document name (default: file name)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "application/octet-stream", "content MIME type")
	return cmd
}

// NewShowCommand creates the show command
func NewShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a document and its cold storage state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				doc, err := rt.Service.GetDocument(ctx, id)
				if err != nil {
					return err
				}
				state, err := rt.Lifecycle.State(ctx, id)
				if err != nil {
					return err
				}
				return app.printJSON(struct {
					*coldstorage.Document
					State coldstorage.State `json:"state"`
				}{doc, state})
			})
		},
	}
}

// NewArchiveCommand creates the archive command
func NewArchiveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <document-id>",
		Short: "Move the main content of a document to cold storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				var doc *coldstorage.Document
				err := txn.Run(ctx, func(ctx context.Context) error {
					var err error
					doc, err = rt.Service.MoveToColdStorage(ctx, id)
					return err
				})
				if err != nil {
					return err
				}
				return app.printJSON(doc)
			})
		},
	}
}

// NewRetrieveCommand creates the retrieve command
func NewRetrieveCommand(app *App) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "retrieve <document-id>",
		Short: "Request a restored copy of a document's cold storage content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				var doc *coldstorage.Document
				err := txn.Run(ctx, func(ctx context.Context) error {
					var err error
					doc, err = rt.Service.RetrieveFromColdStorage(ctx, id, days)
					return err
				})
				if err != nil {
					return err
				}
				return app.printJSON(doc)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", coldstorage.DefaultAvailabilityDays, "number of days the restored copy stays available")
	return cmd
}

// NewCheckCommand creates the check command
func NewCheckCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one availability check over documents being retrieved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *config.Runtime) error {
				status, err := rt.Service.CheckAvailability(ctx)
				if err != nil {
					return err
				}
				return app.printJSON(status)
			})
		},
	}
}

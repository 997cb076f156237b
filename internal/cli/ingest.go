package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/pnmtrack/internal/flow"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Name      string
	Email     string
	StudentID string
	PhotoPath string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Register a new candidate with a headshot",
		Long: `Register a new candidate. The headshot is resized and re-encoded as JPEG
before upload; the local backup log records only its file name and size.

Example:
  pnmtrack ingest --name "Jane Doe" --email jdoe@wisc.edu --id 9081234567 --photo jane.heic.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.StudentID, "id", "", "10-digit student ID")
	cmd.Flags().StringVar(&opts.PhotoPath, "photo", "", "path to headshot image")

	return cmd
}

// IngestResult is the JSON payload of a successful registration.
type IngestResult struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	f := flow.NewIngest(a.deps(), a.cfg.PhotoSettings())
	_ = f.SetName(opts.Name)
	_ = f.SetEmail(opts.Email)
	_ = f.SetStudentID(opts.StudentID)

	if opts.PhotoPath != "" {
		data, err := os.ReadFile(opts.PhotoPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read photo", err)
		}
		_ = f.AttachPhoto(filepath.Base(opts.PhotoPath), data)
	}

	before := f.Snapshot()
	if _, err := f.Submit(cmd.Context()); err != nil {
		return a.reportFlowError(err)
	}
	return a.out.Success(IngestResult{Name: before.Name, StudentID: before.StudentID}, flow.MsgIngestOK)
}

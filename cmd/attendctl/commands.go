package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"voiceattend/internal/attendance"
	"voiceattend/internal/config"
	"voiceattend/internal/dashboard"
	"voiceattend/internal/voiceclient"
)

type cli struct {
	cfg      config.App
	url      string
	interval time.Duration
}

func (c *cli) client() *voiceclient.Client {
	return voiceclient.New(c.url, c.cfg.ServiceTimeout)
}

func (c *cli) dashboard() *dashboard.Dashboard {
	return dashboard.New(c.client(), dashboard.Options{
		PollInterval: c.interval,
		AckDelay:     c.cfg.FeedbackAckDelay,
	})
}

func newRootCmd(cfg config.App) *cobra.Command {
	c := &cli{cfg: cfg}
	root := &cobra.Command{
		Use:          "attendctl",
		Short:        "Operate voice attendance sessions from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.url, "service", cfg.ServiceURL, "attendance service base URL")
	root.PersistentFlags().DurationVar(&c.interval, "interval", cfg.PollInterval, "status poll interval")

	root.AddCommand(
		c.classesCmd(),
		c.rosterCmd(),
		c.addClassCmd(),
		c.recordCmd(),
		c.feedbackCmd(),
		c.profilesCmd(),
		c.enrollCmd(),
	)
	return root
}

func (c *cli) classesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List classes with their last recorded status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			classes, err := c.client().ListClasses(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCLASS\tDEPARTMENT\tSTATUS\tCONFIDENCE\tDATE")
			for _, cl := range classes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%s\n", cl.ID, cl.Name, cl.Department, cl.Status, cl.Confidence, cl.Date)
			}
			s := attendance.Summarize(classes)
			fmt.Fprintf(w, "\n%d classes, %d recorded, avg confidence %.1f\n", s.Classes, s.Recorded, s.AvgConfidence)
			return w.Flush()
		},
	}
}

func (c *cli) rosterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roster <classId>",
		Short: "Show the students of a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			students, err := c.client().ListRoster(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), students)
		},
	}
}

func (c *cli) addClassCmd() *cobra.Command {
	var department string
	cmd := &cobra.Command{
		Use:   "add-class <className>",
		Short: "Create a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := c.dashboard()
			defer d.Close()
			if err := d.AddClass(cmd.Context(), attendance.NewClass{Name: args[0], Department: department}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Class %q added\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&department, "department", "", "department of the class")
	return cmd
}

func (c *cli) recordCmd() *cobra.Command {
	var noCommit bool
	cmd := &cobra.Command{
		Use:   "record <classId> <className>",
		Short: "Start a session, follow it until it completes, then commit the results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.record(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], !noCommit)
		},
	}
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "leave the finalized results uncommitted")
	return cmd
}

func (c *cli) record(ctx context.Context, out io.Writer, classID, className string, commit bool) error {
	d := c.dashboard()
	defer d.Close()

	state, err := d.ToggleSession(ctx, classID, className)
	if err != nil {
		return err
	}
	if state != attendance.StateRecording {
		return fmt.Errorf("class %s is %s, expected a new recording", classID, state)
	}

	tick := c.interval / 2
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	last := ""
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for d.State(classID) != attendance.StateCompleted {
		if s := d.Status(); s != last {
			fmt.Fprintln(out, s)
			last = s
		}
		select {
		case <-ctx.Done():
			// the service session keeps running; drop local tracking only
			_ = d.Abort(classID)
			return ctx.Err()
		case <-ticker.C:
		}
	}
	fmt.Fprintln(out, d.Status())

	pending := d.Pending(classID)
	if err := printRecords(out, pending); err != nil {
		return err
	}
	if !commit {
		fmt.Fprintln(out, "Results not committed (--no-commit)")
		return nil
	}
	if err := d.CommitClass(ctx, classID); err != nil {
		if errors.Is(err, dashboard.ErrNothingToUpdate) {
			fmt.Fprintln(out, "No updates to send")
			return nil
		}
		return err
	}
	fmt.Fprintln(out, d.Status())
	return nil
}

func (c *cli) feedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <studentId> <Correct|Incorrect>",
		Short: "Report whether a recognition was correct",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := c.dashboard()
			defer d.Close()
			reply, err := d.SubmitFeedback(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (verified samples: %d)\n", d.Status(), reply.VerifiedCount)
			return nil
		},
	}
}

func (c *cli) profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List enrolled voice profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := dashboard.NewProfiles(c.client(), nil).List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USN\tNAME\tDEPARTMENT\tCLASS\tSAMPLES\tVERIFIED")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", p.VoiceID, p.Name, p.Department, p.ClassName, len(p.VoiceSamples), len(p.VerifiedSamples))
			}
			return w.Flush()
		},
	}
}

func (c *cli) enrollCmd() *cobra.Command {
	var (
		in    attendance.ProfileInput
		audio string
	)
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Create a voice profile, optionally with a first sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				name string
			)
			if audio != "" {
				b, err := os.ReadFile(audio)
				if err != nil {
					return fmt.Errorf("read audio: %w", err)
				}
				data, name = b, filepath.Base(audio)
			}
			out, err := dashboard.NewProfiles(c.client(), nil).Enroll(cmd.Context(), in, data, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.StudentID, out.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.FullName, "name", "", "student full name")
	cmd.Flags().StringVar(&in.USN, "usn", "", "university seat number")
	cmd.Flags().StringVar(&in.Department, "department", "", "department")
	cmd.Flags().StringVar(&in.ClassName, "class", "", "class name")
	cmd.Flags().StringVar(&audio, "audio", "", "path to a voice sample")
	return cmd
}

func printRecords(out io.Writer, records []attendance.StudentRecord) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tNAME\tCONFIDENCE\tSTATUS\tCHECKINS\tFEEDBACK")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%d\t%s\n", r.StudentID, r.Name, r.Confidence, r.Status, r.Checkins, r.Feedback)
	}
	return w.Flush()
}

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/schemawatch/collector"
	"github.com/hazyhaar/schemawatch/shield"
)

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List captured operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCollector(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			specs, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFINGERPRINT\tENDPOINT")
			for _, s := range specs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.OperationName, s.ContentFingerprint, s.Endpoint)
			}
			return tw.Flush()
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	var jsonSchema bool
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print the stored spec of one operation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCollector(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			var v any
			if jsonSchema {
				v, err = c.JSONSchema(cmd.Context(), args[0])
			} else {
				var spec *collector.OperationSpec
				spec, err = c.Get(cmd.Context(), args[0])
				if err == nil && spec == nil {
					err = collector.ErrNotFound
				}
				v = spec
			}
			if errors.Is(err, collector.ErrNotFound) {
				return fmt.Errorf("no operation named %q", args[0])
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().BoolVar(&jsonSchema, "jsonschema", false, "print the response JSON Schema instead")
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var out, dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the Markdown document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCollector(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if dir != "" {
				path, err := c.ExportFile(cmd.Context(), dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "wrote", path)
				return nil
			}
			doc, err := c.Export(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			return os.WriteFile(out, doc, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&dir, "dir", "", "write a timestamped file into this directory")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.openCollector(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every captured operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Delete all captured operations?") {
				return errors.New("aborted")
			}
			c, err := opts.openCollector(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Clear(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for http.password_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			if pw == "" {
				return errors.New("empty password")
			}
			hash, err := shield.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.store.Migrate(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "migrate", err)
			}
			return newFormatter(opts, cmd).Success(map[string]string{"dialect": string(e.store.Dialect())}, "migrations applied")
		},
	}
}

type sellerView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Prefix     string `json:"prefix,omitempty"`
	RangeStart *int   `json:"rangeStart,omitempty"`
	RangeEnd   *int   `json:"rangeEnd,omitempty"`
}

func toSellerView(s model.Seller) sellerView {
	return sellerView{ID: s.ID, Name: s.Name, Prefix: s.Prefix, RangeStart: s.RangeStart, RangeEnd: s.RangeEnd}
}

func (v sellerView) String() string {
	rng := "-"
	if v.RangeStart != nil && v.RangeEnd != nil {
		rng = fmt.Sprintf("%d-%d", *v.RangeStart, *v.RangeEnd)
	}
	prefix := v.Prefix
	if prefix == "" {
		prefix = "-"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s", v.ID, prefix, rng, v.Name)
}

func NewSellerCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seller",
		Short: "Manage sellers and their code prefixes",
	}
	cmd.AddCommand(newSellerAddCommand(opts))
	cmd.AddCommand(newSellerListCommand(opts))
	cmd.AddCommand(newSellerSetPrefixCommand(opts))
	cmd.AddCommand(newSellerSyncRangeCommand(opts))
	return cmd
}

func newSellerAddCommand(opts *RootOptions) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a seller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			seller, err := e.svc.RegisterSeller(cmd.Context(), args[0], prefix)
			if err != nil {
				return opError("register seller", err)
			}
			view := toSellerView(seller)
			return newFormatter(opts, cmd).Success(view, view.String())
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "code prefix, 2 to 4 letters")
	return cmd
}

func newSellerListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sellers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			sellers, err := e.svc.ListSellers(cmd.Context())
			if err != nil {
				return opError("list sellers", err)
			}
			views := make([]sellerView, 0, len(sellers))
			lines := make([]string, 0, len(sellers))
			for _, s := range sellers {
				v := toSellerView(s)
				views = append(views, v)
				lines = append(lines, v.String())
			}
			return newFormatter(opts, cmd).Success(views, lines...)
		},
	}
}

func newSellerSetPrefixCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-prefix <seller-id> <prefix>",
		Short: "Assign a prefix to a seller that has no codes yet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			seller, err := e.svc.AssignPrefix(cmd.Context(), args[0], args[1])
			if err != nil {
				return opError("set prefix", err)
			}
			view := toSellerView(seller)
			return newFormatter(opts, cmd).Success(view, view.String())
		},
	}
}

func newSellerSyncRangeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-range <seller-id>",
		Short: "Recompute a seller's number range from the codes it holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			seller, err := e.svc.SyncSellerRange(cmd.Context(), args[0])
			if err != nil {
				return opError("sync range", err)
			}
			view := toSellerView(seller)
			return newFormatter(opts, cmd).Success(view, view.String())
		},
	}
}

func NewCodesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Generate and inspect QR codes",
	}
	cmd.AddCommand(newCodesGenerateCommand(opts))
	cmd.AddCommand(newCodesPreviewCommand(opts))
	cmd.AddCommand(newCodesListCommand(opts))
	return cmd
}

type generateView struct {
	Codes    []string `json:"codes"`
	Manifest string   `json:"manifest,omitempty"`
}

func newCodesGenerateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <seller-id> <count>",
		Short: "Create available codes for a seller",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			generated, err := e.svc.GenerateCodes(cmd.Context(), args[0], count)
			if err != nil {
				return opError("generate codes", err)
			}
			seller, err := e.svc.GetSeller(cmd.Context(), args[0])
			if err != nil {
				return opError("load seller", err)
			}
			view := generateView{Codes: make([]string, 0, len(generated))}
			for _, code := range generated {
				view.Codes = append(view.Codes, code.Code)
			}
			view.Manifest = e.publish(cmd.Context(), manifest.ForGenerated(seller, uuid.NewString(), generated))
			lines := append([]string{}, view.Codes...)
			if view.Manifest != "" {
				lines = append(lines, "manifest: "+view.Manifest)
			}
			return newFormatter(opts, cmd).Success(view, lines...)
		},
	}
}

func newCodesPreviewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <seller-id> <count>",
		Short: "Show the next free codes without claiming them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := parseCount(args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			next, err := e.svc.AllocateNumbers(cmd.Context(), args[0], count)
			if err != nil {
				return opError("preview codes", err)
			}
			return newFormatter(opts, cmd).Success(next, next...)
		},
	}
}

type codeView struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

func newCodesListCommand(opts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <seller-id>",
		Short: "List a seller's codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			list, err := e.svc.ListSellerCodes(cmd.Context(), args[0], model.CodeStatus(status))
			if err != nil {
				return opError("list codes", err)
			}
			views := make([]codeView, 0, len(list))
			lines := make([]string, 0, len(list))
			for _, code := range list {
				views = append(views, codeView{Code: code.Code, Status: string(code.Status)})
				lines = append(lines, code.Code+"\t"+string(code.Status))
			}
			return newFormatter(opts, cmd).Success(views, lines...)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only codes in this status")
	return cmd
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("count must be a positive integer, got %q", raw))
	}
	return n, nil
}

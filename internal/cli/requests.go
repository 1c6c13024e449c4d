package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/auth"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/model"
)

type requestView struct {
	ID         string         `json:"id"`
	SellerID   string         `json:"sellerId"`
	Status     string         `json:"status"`
	Quantities map[string]int `json:"quantities"`
	Codes      []string       `json:"generatedQrCodes,omitempty"`
	Manifest   string         `json:"manifest,omitempty"`
}

func toRequestView(r model.ShipmentRequest) requestView {
	return requestView{
		ID:         r.ID,
		SellerID:   r.SellerID,
		Status:     string(r.Status),
		Quantities: r.Quantities,
		Codes:      r.GeneratedQRCodes,
	}
}

func (v requestView) String() string {
	types := make([]string, 0, len(v.Quantities))
	for matType := range v.Quantities {
		types = append(types, matType)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, matType := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", matType, v.Quantities[matType]))
	}
	return fmt.Sprintf("%s\t%s\t%s", v.ID, v.Status, strings.Join(parts, ","))
}

func NewRequestsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Review and approve shipment requests",
	}
	cmd.AddCommand(newRequestsListCommand(opts))
	cmd.AddCommand(newRequestsApproveCommand(opts))
	return cmd
}

func newRequestsListCommand(opts *RootOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list <seller-id>",
		Short: "List a seller's shipment requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			requests, err := e.svc.ListRequests(cmd.Context(), args[0], model.RequestStatus(status))
			if err != nil {
				return opError("list requests", err)
			}
			views := make([]requestView, 0, len(requests))
			lines := make([]string, 0, len(requests))
			for _, r := range requests {
				v := toRequestView(r)
				views = append(views, v)
				lines = append(lines, v.String())
			}
			return newFormatter(opts, cmd).Success(views, lines...)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending or approved")
	return cmd
}

func newRequestsApproveCommand(opts *RootOptions) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending request and reserve its codes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			approved, err := e.svc.ApproveRequest(cmd.Context(), args[0], actor)
			if err != nil {
				return opError("approve request", err)
			}
			seller, err := e.svc.GetSeller(cmd.Context(), approved.SellerID)
			if err != nil {
				return opError("load seller", err)
			}
			view := toRequestView(approved)
			view.Manifest = e.publish(cmd.Context(), manifest.ForRequest(seller, approved))
			lines := []string{view.String()}
			lines = append(lines, view.Codes...)
			if view.Manifest != "" {
				lines = append(lines, "manifest: "+view.Manifest)
			}
			return newFormatter(opts, cmd).Success(view, lines...)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "matctl", "recorded as the approver")
	return cmd
}

type longTestView struct {
	CycleID string `json:"cycleId"`
	Code    string `json:"code"`
	Level   string `json:"level"`
	Days    int    `json:"days"`
}

func NewCyclesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "Inspect test cycles",
	}
	cmd.AddCommand(newCyclesLongTestCommand(opts))
	return cmd
}

func newCyclesLongTestCommand(opts *RootOptions) *cobra.Command {
	var sellerID string
	cmd := &cobra.Command{
		Use:   "long-test",
		Short: "List unsigned cycles that have been on test too long",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.close()
			entries, err := e.svc.ListLongTest(cmd.Context(), sellerID)
			if err != nil {
				return opError("long-test report", err)
			}
			views := make([]longTestView, 0, len(entries))
			lines := make([]string, 0, len(entries))
			for _, entry := range entries {
				v := longTestView{CycleID: entry.Cycle.ID, Code: entry.Cycle.Code, Level: string(entry.Level), Days: entry.Days}
				views = append(views, v)
				lines = append(lines, fmt.Sprintf("%s\t%s\t%s\t%dd", v.Code, v.Level, v.CycleID, v.Days))
			}
			return newFormatter(opts, cmd).Success(views, lines...)
		},
	}
	cmd.Flags().StringVar(&sellerID, "seller", "", "restrict to one seller")
	return cmd
}

type tokenOptions struct {
	keyFile  string
	userID   string
	role     string
	sellerID string
	ttl      time.Duration
}

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	t := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for local testing",
		Args:  cobra.NoArgs,
		// Token signing never touches the database.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.keyFile == "" || t.userID == "" {
				return NewExitError(ExitCommandError, "--key and --user are required")
			}
			pemData, err := os.ReadFile(t.keyFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "read key", err)
			}
			key, err := auth.ParseRSAPrivateKey(string(pemData))
			if err != nil {
				return WrapExitError(ExitCommandError, "parse key", err)
			}
			switch t.role {
			case auth.RoleAdmin, auth.RoleSeller, auth.RoleDriver:
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown role %q", t.role))
			}
			token, err := auth.NewToken(key, config.Load().JWTIssuer, t.ttl, auth.Claims{
				UserID:   t.userID,
				Role:     t.role,
				SellerID: t.sellerID,
			})
			if err != nil {
				return WrapExitError(ExitFailure, "sign token", err)
			}
			return newFormatter(opts, cmd).Success(map[string]string{"token": token}, token)
		},
	}
	cmd.Flags().StringVar(&t.keyFile, "key", "", "PEM encoded RSA private key")
	cmd.Flags().StringVar(&t.userID, "user", "", "user id claim")
	cmd.Flags().StringVar(&t.role, "role", auth.RoleAdmin, "admin, seller or driver")
	cmd.Flags().StringVar(&t.sellerID, "seller", "", "seller id claim for seller tokens")
	cmd.Flags().DurationVar(&t.ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

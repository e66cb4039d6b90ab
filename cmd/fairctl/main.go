// Command fairctl checks mines rounds offline: hash a seed, derive the
// canonical outcome, verify a claim, check a signed receipt or mint an admin
// token for the HTTP API.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"minesServer/api"
	"minesServer/config"
	"minesServer/crypto"
	"minesServer/game"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fairctl",
		Short:        "Provably fair mines toolkit",
		SilenceUsage: true,
	}

	root.AddCommand(
		newHashCmd(),
		newDeriveCmd(),
		newVerifyCmd(),
		newReceiptCmd(),
		newTokenCmd(),
	)
	return root
}

// =============================================================================
// HASH
// =============================================================================

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [server-seed]",
		Short: "Print the commitment for a seed, or generate a fresh pair",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				if err := game.ValidateDigest("serverSeed", args[0]); err != nil {
					return err
				}
				fmt.Fprintln(out, crypto.HashServerSeed(args[0]))
				return nil
			}

			seed, hash, err := crypto.GenerateServerSeed()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "seed: %s\nhash: %s\n", seed, hash)
			return nil
		},
	}
}

// =============================================================================
// DERIVE / VERIFY
// =============================================================================

type roundFlags struct {
	serverSeed string
	clientSeed string
	nonce      int64
	mines      int
}

func (f *roundFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.serverSeed, "server-seed", "", "revealed server seed (64 hex chars)")
	cmd.Flags().StringVar(&f.clientSeed, "client-seed", "", "client seed")
	cmd.Flags().Int64Var(&f.nonce, "nonce", 0, "round nonce")
	cmd.Flags().IntVar(&f.mines, "mines", 0, fmt.Sprintf("mine count (%d-%d)", config.MinMines, config.MaxMines))
	_ = cmd.MarkFlagRequired("server-seed")
	_ = cmd.MarkFlagRequired("mines")
}

func (f *roundFlags) outcome() (game.Outcome, error) {
	if err := game.ValidateDigest("serverSeed", f.serverSeed); err != nil {
		return nil, err
	}
	if err := game.ValidateNonce(f.nonce); err != nil {
		return nil, err
	}
	if err := game.ValidateMineCount(f.mines); err != nil {
		return nil, err
	}
	return game.CanonicalOutcome(f.serverSeed, f.clientSeed, f.nonce, game.MinesGrid(f.mines))
}

func newDeriveCmd() *cobra.Command {
	var f roundFlags

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the canonical mine positions for a revealed round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := f.outcome()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), joinCells(outcome))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		f     roundFlags
		hash  string
		claim []int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a revealed seed against its commitment and a claimed outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			outcome, err := f.outcome()
			if err != nil {
				return err
			}

			if hash == "" {
				hash = crypto.HashServerSeed(f.serverSeed)
			} else if !crypto.VerifySeed(f.serverSeed, hash) {
				fmt.Fprintln(out, "commitment: MISMATCH")
				return errors.New(game.ReasonHashMismatch)
			}
			fmt.Fprintf(out, "commitment: ok (%s)\n", hash)
			fmt.Fprintf(out, "canonical:  %s\n", joinCells(outcome))

			if !outcome.SameSet(claim) {
				fmt.Fprintf(out, "claimed:    %s MISMATCH\n", joinCells(claim))
				return errors.New(game.ReasonOutcomeMismatch)
			}
			fmt.Fprintf(out, "claimed:    %s ok\n", joinCells(claim))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&hash, "hash", "", "committed sha256 of the server seed (default: derived)")
	cmd.Flags().IntSliceVar(&claim, "claim", nil, "claimed mine positions, comma separated")
	_ = cmd.MarkFlagRequired("claim")
	return cmd
}

// =============================================================================
// RECEIPT
// =============================================================================

func newReceiptCmd() *cobra.Command {
	var signer string

	cmd := &cobra.Command{
		Use:   "receipt <file|->",
		Short: "Check the signature on a submission receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read receipt: %w", err)
			}

			var r crypto.Receipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("failed to parse receipt: %w", err)
			}
			if err := crypto.VerifyReceipt(r, signer); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "receipt %s valid, signed by %s\n", r.SubmissionID, r.Signer)
			return nil
		},
	}
	cmd.Flags().StringVar(&signer, "signer", "", "expected signer address (0x...)")
	return cmd
}

// =============================================================================
// TOKEN
// =============================================================================

func newTokenCmd() *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <admin-id>",
		Short: "Mint an admin bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = config.Load().AdminJWTSecret
			}
			token, err := api.NewAdminAuth(secret, args).IssueToken(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret (default: ADMIN_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

/* =========================
   HELPERS
========================= */

func joinCells(cells []int) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ",")
}

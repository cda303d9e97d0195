package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/invoicing/internal/auth"
)

type hashTokenOpts struct {
	*rootOpts
}

func hashToken(o *rootOpts) *hashTokenOpts {
	return &hashTokenOpts{rootOpts: o}
}

func (h *hashTokenOpts) cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print a bcrypt hash of an admin token for ADMIN_TOKEN",
		Long: `Hashes the token given as argument, or the first line of stdin when no
argument is given. The output can be used as ADMIN_TOKEN so the plain token
is never stored in the environment.`,
		Args: cobra.MaximumNArgs(1),
		RunE: h.runE,
	}
}

func (h *hashTokenOpts) runE(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(line)
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash [password]",
	Short: "Hash a password with the configured algorithm, or verify it with --verify",
	Long: `Hash a password with the configured algorithm. The password is read from
the first line of stdin when not given as an argument.

Examples:
  authctl hash 's3cret-pw'
  echo 's3cret-pw' | authctl hash --verify '$2a$12$...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHash,
}

func init() {
	hashCmd.Flags().String("verify", "", "digest to verify the password against")
}

func runHash(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pw := ""
	if len(args) == 1 {
		pw = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password given")
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	var h password.Hasher
	if cfg.Password.Algorithm == authcore.PasswordArgon2id {
		h, err = password.NewArgon2(password.DefaultArgon2Config())
	} else {
		h, err = password.NewBcrypt(cfg.Password.BcryptCost)
	}
	if err != nil {
		return err
	}

	if digest, _ := cmd.Flags().GetString("verify"); digest != "" {
		ok, err := h.Verify(pw, digest)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ok)
		if !ok {
			return errors.New("password does not match")
		}
		return nil
	}

	digest, err := h.Hash(pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), digest)
	return nil
}

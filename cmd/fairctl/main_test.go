package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minesServer/api"
	"minesServer/crypto"
	"minesServer/game"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestHashCmd(t *testing.T) {
	seed := strings.Repeat("ab", 32)

	out, err := run(t, "", "hash", seed)
	require.NoError(t, err)
	assert.Equal(t, crypto.HashServerSeed(seed)+"\n", out)

	out, err = run(t, "", "hash")
	require.NoError(t, err)
	assert.Contains(t, out, "seed: ")
	assert.Contains(t, out, "hash: ")

	_, err = run(t, "", "hash", "not-hex")
	assert.True(t, game.IsValidationError(err))
}

func TestDeriveAndVerifyCmd(t *testing.T) {
	seed, hash, err := crypto.GenerateServerSeed()
	require.NoError(t, err)

	want, err := game.CanonicalOutcome(seed, "lucky", 7, game.MinesGrid(4))
	require.NoError(t, err)
	claim := joinCells(want)

	out, err := run(t, "", "derive", "--server-seed", seed, "--client-seed", "lucky", "--nonce", "7", "--mines", "4")
	require.NoError(t, err)
	assert.Equal(t, claim+"\n", out)

	t.Run("Match", func(t *testing.T) {
		out, err := run(t, "", "verify", "--server-seed", seed, "--hash", hash,
			"--client-seed", "lucky", "--nonce", "7", "--mines", "4", "--claim", claim)
		require.NoError(t, err)
		assert.Contains(t, out, "commitment: ok")
		assert.Contains(t, out, claim+" ok")
	})

	t.Run("WrongHash", func(t *testing.T) {
		_, err := run(t, "", "verify", "--server-seed", seed, "--hash", strings.Repeat("0", 64),
			"--client-seed", "lucky", "--nonce", "7", "--mines", "4", "--claim", claim)
		require.Error(t, err)
		assert.Equal(t, game.ReasonHashMismatch, err.Error())
	})

	t.Run("WrongClaim", func(t *testing.T) {
		wrong := append([]int{}, want...)
		for c := 0; c < 25; c++ {
			if !containsCell(want, c) {
				wrong[len(wrong)-1] = c
				break
			}
		}
		out, err := run(t, "", "verify", "--server-seed", seed,
			"--client-seed", "lucky", "--nonce", "7", "--mines", "4", "--claim", joinCells(wrong))
		require.Error(t, err)
		assert.Equal(t, game.ReasonOutcomeMismatch, err.Error())
		assert.Contains(t, out, "MISMATCH")
	})

	t.Run("MalformedSeedIsValidation", func(t *testing.T) {
		out, err := run(t, "", "verify", "--server-seed", "not-a-seed", "--hash", hash,
			"--client-seed", "lucky", "--nonce", "7", "--mines", "4", "--claim", claim)
		require.Error(t, err)
		assert.True(t, game.IsValidationError(err))
		assert.NotContains(t, out, "MISMATCH")
	})

	t.Run("MissingFlags", func(t *testing.T) {
		_, err := run(t, "", "derive", "--client-seed", "lucky")
		assert.Error(t, err)
	})
}

func TestReceiptCmd(t *testing.T) {
	signer, err := crypto.NewReceiptSigner("")
	require.NoError(t, err)

	r := crypto.Receipt{
		SubmissionID:   "sub-1",
		SubmitterID:    "alice",
		ServerSeedHash: strings.Repeat("c", 64),
		Nonce:          3,
		MineCount:      2,
		Outcome:        []int{4, 17},
		IssuedAt:       time.Now().Unix(),
	}
	require.NoError(t, signer.Sign(&r))

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "receipt.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	out, err := run(t, "", "receipt", path, "--signer", signer.Address())
	require.NoError(t, err)
	assert.Contains(t, out, "receipt sub-1 valid")

	_, err = run(t, string(raw), "receipt", "-")
	require.NoError(t, err)

	r.Outcome = []int{4, 18}
	tampered, err := json.Marshal(r)
	require.NoError(t, err)
	_, err = run(t, string(tampered), "receipt", "-")
	assert.Error(t, err)
}

func TestTokenCmd(t *testing.T) {
	out, err := run(t, "", "token", "root", "--secret", "s3cret", "--ttl", "5m")
	require.NoError(t, err)

	subject, err := api.NewAdminAuth("s3cret", []string{"root"}).Authenticate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "root", subject)

	t.Setenv("ADMIN_JWT_SECRET", "")
	_, err = run(t, "", "token", "root")
	assert.Error(t, err)
}

func containsCell(cells []int, c int) bool {
	for _, x := range cells {
		if x == c {
			return true
		}
	}
	return false
}

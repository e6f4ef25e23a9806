package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finsight/internal/apikey"
	"github.com/kiranshivaraju/finsight/internal/config"
	"github.com/kiranshivaraju/finsight/internal/store"
	"github.com/kiranshivaraju/finsight/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// KeyStore is the part of the store the key commands need.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// KeysOptions talks to the database directly so the first admin key can be
// minted before any key exists.
type KeysOptions struct {
	Output string

	openStore func(ctx context.Context) (KeyStore, func(), error)
}

func DefaultKeysOptions() *KeysOptions {
	return &KeysOptions{
		Output:    jsonFormat,
		openStore: openPostgres,
	}
}

func openPostgres(ctx context.Context) (KeyStore, func(), error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func NewCmdKeys() *cobra.Command {
	return newCmdKeys(DefaultKeysOptions())
}

func newCmdKeys(o *KeysOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys. Reads DATABASE_URL from the environment.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&o.Output, "output", "o", o.Output,
		fmt.Sprintf("Output format. One of: (%s)", legalOutputTypes))
	cmd.AddCommand(newCmdKeysCreate(o), newCmdKeysList(o), newCmdKeysRevoke(o))
	return cmd
}

func (o *KeysOptions) withStore(ctx context.Context, fn func(KeyStore) error) error {
	s, closeFn, err := o.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(s)
}

func (o *KeysOptions) printer() *GlobalOptions {
	return &GlobalOptions{Output: o.Output}
}

type keysCreateOptions struct {
	*KeysOptions

	Name   string
	Scopes []string
}

func newCmdKeysCreate(parent *KeysOptions) *cobra.Command {
	o := &keysCreateOptions{KeysOptions: parent}
	cmd := &cobra.Command{
		Use:          "create",
		Short:        "Create an API key. The raw key is printed once.",
		Args:         cobra.NoArgs,
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *keysCreateOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "name", o.Name, "Human readable key name")
	fs.StringSliceVar(&o.Scopes, "scope", o.Scopes,
		fmt.Sprintf("Scope granted to the key, repeatable. One of: (%s)", strings.Join(apikey.KnownScopes, ", ")))
}

func (o *keysCreateOptions) Complete(cmd *cobra.Command, args []string) error {
	o.Name = strings.TrimSpace(o.Name)
	return nil
}

func (o *keysCreateOptions) Validate(args []string) error {
	if o.Name == "" {
		return fmt.Errorf("--name is required")
	}
	return nil
}

func (o *keysCreateOptions) Run(cmd *cobra.Command, args []string) error {
	key, raw, err := apikey.Generate(o.Name, o.Scopes)
	if err != nil {
		return err
	}
	err = o.withStore(cmd.Context(), func(s KeyStore) error {
		return s.CreateAPIKey(cmd.Context(), key)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("key prefix collision, run the command again")
		}
		return fmt.Errorf("creating key: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Store this key now, it cannot be shown again.")
	return o.printer().print(cmd.OutOrStdout(), struct {
		*models.APIKey
		Key string `json:"key"`
	}{key, raw})
}

type keysListOptions struct {
	*KeysOptions
	Table bool
}

func newCmdKeysList(parent *KeysOptions) *cobra.Command {
	o := &keysListOptions{KeysOptions: parent}
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List active API keys.",
		Args:         cobra.NoArgs,
		RunE:         runE(o),
		SilenceUsage: true,
	}
	cmd.Flags().BoolVar(&o.Table, "table", o.Table, "Print a table instead of structured output")
	return cmd
}

func (o *keysListOptions) Complete(cmd *cobra.Command, args []string) error { return nil }
func (o *keysListOptions) Validate(args []string) error                    { return nil }

func (o *keysListOptions) Run(cmd *cobra.Command, args []string) error {
	var keys []*models.APIKey
	err := o.withStore(cmd.Context(), func(s KeyStore) error {
		var err error
		keys, err = s.ListAPIKeys(cmd.Context())
		return err
	})
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	if !o.Table {
		return o.printer().print(cmd.OutOrStdout(), keys)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tSCOPES\tLAST USED")
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed)
	}
	return w.Flush()
}

type keysRevokeOptions struct {
	*KeysOptions
}

func newCmdKeysRevoke(parent *KeysOptions) *cobra.Command {
	o := &keysRevokeOptions{KeysOptions: parent}
	return &cobra.Command{
		Use:          "revoke KEY_ID",
		Short:        "Revoke an API key.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
}

func (o *keysRevokeOptions) Complete(cmd *cobra.Command, args []string) error { return nil }

func (o *keysRevokeOptions) Validate(args []string) error {
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid key id %q: %w", args[0], err)
	}
	return nil
}

func (o *keysRevokeOptions) Run(cmd *cobra.Command, args []string) error {
	id := uuid.MustParse(args[0])
	err := o.withStore(cmd.Context(), func(s KeyStore) error {
		return s.RevokeAPIKey(cmd.Context(), id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("key %s not found or already revoked", id)
	}
	if err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "key %s revoked\n", id)
	return nil
}

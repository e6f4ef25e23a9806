package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/kiranshivaraju/finsight/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var legalOutputTypes = []string{jsonFormat, yamlFormat}

// GlobalOptions holds the flags shared by every command that talks to the API.
type GlobalOptions struct {
	ServerURL string
	APIKey    string
	Output    string

	clientOpts []client.Option
}

func DefaultGlobalOptions() GlobalOptions {
	url := os.Getenv("FINSIGHT_URL")
	if url == "" {
		url = "http://localhost:8080"
	}
	return GlobalOptions{
		ServerURL: url,
		APIKey:    os.Getenv("FINSIGHT_API_KEY"),
		Output:    jsonFormat,
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ServerURL, "server-url", "u", o.ServerURL, "Address of the FinSight API (env FINSIGHT_URL)")
	fs.StringVar(&o.APIKey, "api-key", o.APIKey, "API key sent as a bearer token (env FINSIGHT_API_KEY)")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s)", legalOutputTypes))
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.ServerURL == "" {
		return fmt.Errorf("--server-url is required")
	}
	if o.APIKey == "" {
		return fmt.Errorf("--api-key or FINSIGHT_API_KEY is required")
	}
	if !slices.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %v", legalOutputTypes)
	}
	return nil
}

func (o *GlobalOptions) Client() *client.Client {
	return client.New(o.ServerURL, o.APIKey, o.clientOpts...)
}

func (o *GlobalOptions) print(w io.Writer, v any) error {
	var (
		out []byte
		err error
	)
	switch o.Output {
	case yamlFormat:
		out, err = yaml.Marshal(v)
	default:
		out, err = json.MarshalIndent(v, "", "  ")
		out = append(out, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// runOptions is the Bind/Complete/Validate/Run contract shared by the commands.
type runOptions interface {
	Complete(cmd *cobra.Command, args []string) error
	Validate(args []string) error
	Run(cmd *cobra.Command, args []string) error
}

func runE(o runOptions) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := o.Complete(cmd, args); err != nil {
			return err
		}
		if err := o.Validate(args); err != nil {
			return err
		}
		return o.Run(cmd, args)
	}
}

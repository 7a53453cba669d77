package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was valid.
// They exit with 1; everything else is a usage error and exits with 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		_, _ = fmt.Fprintln(stderr, reqErr.Error())
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCommand(defaults Options) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		timeout time.Duration
	)
	root := &cobra.Command{
		Use:           "askdbctl",
		Short:         "Ask questions about your database through the askdb API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("a command is required")
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askdb API base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")

	newClient := func() *client {
		httpClient := defaults.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: timeout}
		}
		return &client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: strings.TrimSpace(apiKey), http: httpClient}
	}

	root.AddCommand(
		newRawCommand("health", "Check the service is running", http.MethodGet, "/v1/health", newClient),
		newRawCommand("ready", "Check the database and model are reachable", http.MethodGet, "/v1/ready", newClient),
		newSchemaCommand(newClient),
		newRefreshSchemaCommand(newClient),
		newTranslateCommand(newClient),
		newAskCommand(newClient),
		newQueryCommand(newClient),
	)
	return root
}

func newRawCommand(use, short, method, path string, newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient().do(cmd.Context(), method, path, nil)
			if err != nil {
				return err
			}
			writeJSON(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newSchemaCommand(newClient func() *client) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the tables and columns the model sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			body, err := newClient().do(cmd.Context(), http.MethodGet, "/v1/schema", nil)
			if err != nil {
				return err
			}
			return renderSchema(cmd.OutOrStdout(), body, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or csv")
	return cmd
}

func newRefreshSchemaCommand(newClient func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-schema",
		Short: "Re-read the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := newClient().do(cmd.Context(), http.MethodPost, "/v1/schema/refresh", nil)
			if err != nil {
				return err
			}
			return renderSchema(cmd.OutOrStdout(), body, "table")
		},
	}
}

func newTranslateCommand(newClient func() *client) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "translate <question>",
		Short: "Print the SQL for a question without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"question": strings.Join(args, " ")}
			body, err := newClient().do(cmd.Context(), http.MethodPost, "/v1/query/translate", payload)
			if err != nil {
				return err
			}
			if output == "json" {
				writeJSON(cmd.OutOrStdout(), body)
				return nil
			}
			var translated struct {
				SQL string `json:"sql"`
			}
			if err := json.Unmarshal(body, &translated); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), translated.SQL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

type resultFlags struct {
	output         string
	chart          string
	rowLimit       int
	allowMutations bool
}

func (f *resultFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "table", "output format: table, json or csv")
	cmd.Flags().StringVar(&f.chart, "chart", "auto", "chart kind: auto, bar, line, area, pie or none")
	cmd.Flags().IntVar(&f.rowLimit, "row-limit", 0, "maximum rows to return (0 uses the server limit)")
	cmd.Flags().BoolVar(&f.allowMutations, "allow-mutations", false, "allow INSERT/UPDATE/DELETE when the server permits it")
}

func newAskCommand(newClient func() *client) *cobra.Command {
	var flags resultFlags
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(flags.output); err != nil {
				return err
			}
			payload := map[string]any{
				"question":        strings.Join(args, " "),
				"chart":           flags.chart,
				"row_limit":       flags.rowLimit,
				"allow_mutations": flags.allowMutations,
			}
			body, err := newClient().do(cmd.Context(), http.MethodPost, "/v1/ask", payload)
			if err != nil {
				return err
			}
			return renderAnswer(cmd.OutOrStdout(), body, flags.output)
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueryCommand(newClient func() *client) *cobra.Command {
	var flags resultFlags
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run SQL through the same guard as generated statements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(flags.output); err != nil {
				return err
			}
			payload := map[string]any{
				"sql":             args[0],
				"chart":           flags.chart,
				"row_limit":       flags.rowLimit,
				"allow_mutations": flags.allowMutations,
			}
			body, err := newClient().do(cmd.Context(), http.MethodPost, "/v1/query", payload)
			if err != nil {
				return err
			}
			return renderAnswer(cmd.OutOrStdout(), body, flags.output)
		},
	}
	flags.register(cmd)
	return cmd
}

func validateOutput(output string) error {
	switch output {
	case "table", "json", "csv":
		return nil
	default:
		return fmt.Errorf("unsupported output %q", output)
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &requestError{err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}
	code, responseBody, err := doRequest(ctx, c.http, method, c.baseURL+path, c.apiKey, body)
	if err != nil {
		return nil, &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return nil, &requestError{err: httpError(code, responseBody)}
	}
	return responseBody, nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

// httpError renders the API error envelope, including the model's raw output
// when no SQL could be extracted from it.
func httpError(code int, body []byte) error {
	var envelope struct {
		ErrorCode string         `json:"error_code"`
		Message   string         `json:"message"`
		Context   map[string]any `json:"context"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ErrorCode == "" {
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "http %d: %s: %s", code, envelope.ErrorCode, envelope.Message)
	if sqlText, ok := envelope.Context["sql"].(string); ok && sqlText != "" {
		fmt.Fprintf(&b, "\nsql: %s", sqlText)
	}
	if raw, ok := envelope.Context["raw_output"].(string); ok && raw != "" {
		fmt.Fprintf(&b, "\nmodel output:\n%s", raw)
	}
	return errors.New(b.String())
}

func writeJSON(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

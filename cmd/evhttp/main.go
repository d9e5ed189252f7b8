// Command evhttp is a small transfer tool over the evhttp engine, useful
// for poking at servers and for demonstrating the client options.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"

	evhttp "github.com/evwire/evhttp"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "evhttp:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "evhttp [flags] URL",
		Short:        "transfer data over HTTP(S) and websockets",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v.SetEnvPrefix("EVHTTP")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, args[0], cmd.Flags())
		},
	}

	flags := cmd.Flags()
	flags.StringP("method", "X", "GET", "request method")
	flags.StringP("data", "d", "", "request body")
	flags.StringArrayP("header", "H", nil, "request header, 'Name: value', repeatable")
	flags.BoolP("include", "i", false, "print response headers")
	flags.BoolP("location", "L", false, "follow redirects")
	flags.Int("max-redirects", 10, "redirect chain bound")
	flags.Duration("timeout", 30*time.Second, "overall request timeout")
	flags.String("proxy", "", "proxy URL for both http and https")
	flags.BoolP("insecure", "k", false, "skip TLS certificate verification")
	flags.StringP("output", "o", "", "write payload to file instead of stdout")
	flags.String("json", "", "print only this gjson path of a JSON payload")
	flags.String("user-agent", "", "override the User-Agent header")
	flags.Bool("verbose", false, "log the exchange lifecycle")
	return cmd
}

func run(ctx context.Context, v *viper.Viper, url string, flags *pflag.FlagSet) error {
	opts := []evhttp.Option{
		evhttp.WithMaxRedirects(v.GetInt("max-redirects")),
	}
	if v.GetBool("verbose") {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		opts = append(opts, evhttp.WithLogger(slog.New(h)))
	}
	if proxy := v.GetString("proxy"); proxy != "" {
		opts = append(opts, evhttp.WithProxies(map[string]string{"http": proxy, "https": proxy}))
	}
	if v.GetBool("insecure") {
		opts = append(opts, evhttp.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	if ua := v.GetString("user-agent"); ua != "" {
		opts = append(opts, evhttp.WithUserAgent(ua))
	}
	cl := evhttp.NewClient(opts...)

	req := cl.NewRequest(v.GetString("method"), url)
	req.AllowRedirects = v.GetBool("location")
	if data := v.GetString("data"); data != "" {
		req.Data = data
		if req.Method == "GET" {
			req.Method = "POST"
		}
	}
	headers, err := flags.GetStringArray("header")
	if err != nil {
		return err
	}
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("malformed header %q", h)
		}
		if req.Header == nil {
			req.Header = evhttp.Header{}
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	ctx, cancel := context.WithTimeout(ctx, v.GetDuration("timeout"))
	defer cancel()

	resp, err := cl.Do(ctx, req)
	if err != nil {
		return err
	}
	return render(v, resp)
}

func render(v *viper.Viper, resp *evhttp.Response) error {
	out := os.Stdout
	if path := v.GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if v.GetBool("include") {
		fmt.Fprintln(out, resp.Proto(), resp.Status())
		for name, values := range resp.Headers() {
			for _, value := range values {
				fmt.Fprintf(out, "%s: %s\n", name, value)
			}
		}
		fmt.Fprintln(out)
	}

	body, err := resp.Content()
	if err != nil {
		return err
	}
	if path := v.GetString("json"); path != "" {
		result := gjson.GetBytes(body, path)
		if !result.Exists() {
			return errors.New("json path matched nothing")
		}
		fmt.Fprintln(out, result.String())
		return nil
	}
	_, err = out.Write(body)
	return err
}

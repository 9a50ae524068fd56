package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/X-rus/xnet/pkg/client"
	"github.com/X-rus/xnet/pkg/config"
	"github.com/X-rus/xnet/pkg/content"
)

// requestOptions are the flags shared by request and get.
type requestOptions struct {
	method     string
	data       string
	headers    []string
	fields     []string
	proxies    []string
	insecure   bool
	output     string
	include    bool
	noRedirect bool
	timeout    time.Duration
}

var (
	requestFlags requestOptions
	getFlags     requestOptions
)

var requestCmd = &cobra.Command{
	Use:   "request [flags] URL",
	Short: "Send an HTTP request",
	Long: `Send one HTTP/1.1 request and print the response body.

The method defaults to GET, or POST when -d or -F is given. -d sends a
url-encoded body (prefix with @ to read a file). -F adds a multipart field;
name=@path uploads a file. Repeat --proxy to chain proxies in order.

Examples:
  xnet request -X PUT -H 'Content-Type: application/json' -d '{"a":1}' http://127.0.0.1:8080/items
  xnet request -F note=hello -F file=@./report.pdf https://example.com/upload
  xnet request --proxy http://10.0.0.1:3128 --proxy socks5://10.0.0.2:1080 https://example.com/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRequest(cmd, requestFlags, args[0])
	},
}

var getCmd = &cobra.Command{
	Use:   "get URL",
	Short: "Send a GET request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := getFlags
		opts.method = "GET"
		return runRequest(cmd, opts, args[0])
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(getCmd)

	f := requestCmd.Flags()
	f.StringVarP(&requestFlags.method, "request", "X", "", "request method")
	f.StringVarP(&requestFlags.data, "data", "d", "", "url-encoded body, or @file")
	f.StringArrayVarP(&requestFlags.fields, "form", "F", nil, "multipart field name=value or name=@file")
	bindCommon(f, &requestFlags)

	bindCommon(getCmd.Flags(), &getFlags)
}

func bindCommon(f *pflag.FlagSet, o *requestOptions) {
	f.StringArrayVarP(&o.headers, "header", "H", nil, "extra header 'Name: value'")
	f.StringArrayVar(&o.proxies, "proxy", nil, "proxy URL (repeat to chain)")
	f.BoolVarP(&o.insecure, "insecure", "k", false, "accept any server certificate")
	f.StringVarP(&o.output, "output", "o", "", "write the body to a file")
	f.BoolVarP(&o.include, "include", "i", false, "print the status line and headers")
	f.BoolVar(&o.noRedirect, "no-redirect", false, "do not follow redirects")
	f.DurationVar(&o.timeout, "timeout", 0, "overall request timeout")
}

// newRequest builds a Request from the configuration and the per-command
// overrides.
func newRequest(cfg *config.Config, opts requestOptions) (*client.Request, error) {
	if opts.insecure {
		cfg.TLS.AcceptAllCertificates = true
	}
	if len(opts.proxies) > 0 {
		cfg.Proxy.URL = ""
		cfg.Proxy.Chain = opts.proxies
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	r, err := cfg.NewRequest()
	if err != nil {
		return nil, err
	}
	if opts.noRedirect {
		r.AllowAutoRedirect = false
	}
	return r, nil
}

// parseHeader splits "Name: value".
func parseHeader(h string) (string, string, error) {
	name, value, ok := strings.Cut(h, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid header %q, want 'Name: value'", h)
	}
	return name, strings.TrimSpace(value), nil
}

// parseField splits "name=value"; a value starting with @ names a file.
func parseField(f string) (name, value string, isFile bool, err error) {
	name, value, ok := strings.Cut(f, "=")
	if !ok || name == "" {
		return "", "", false, fmt.Errorf("invalid form field %q, want name=value", f)
	}
	if strings.HasPrefix(value, "@") {
		return name, value[1:], true, nil
	}
	return name, value, false, nil
}

// prepareBody applies headers, fields and data to r and returns the explicit
// body and the method to use.
func prepareBody(r *client.Request, opts requestOptions) (content.Provider, string, error) {
	var contentType string
	for _, h := range opts.headers {
		name, value, err := parseHeader(h)
		if err != nil {
			return nil, "", err
		}
		if strings.EqualFold(name, "Content-Type") {
			contentType = value
			continue
		}
		if err := r.AddHeader(name, value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range opts.fields {
		name, value, isFile, err := parseField(f)
		if err != nil {
			return nil, "", err
		}
		if isFile {
			if err := r.AddFile(name, value); err != nil {
				return nil, "", err
			}
		} else {
			r.AddField(name, value)
		}
	}

	var body content.Provider
	if opts.data != "" {
		data := []byte(opts.data)
		if strings.HasPrefix(opts.data, "@") {
			var err error
			if data, err = os.ReadFile(opts.data[1:]); err != nil {
				return nil, "", fmt.Errorf("reading body: %w", err)
			}
		}
		ct := content.TypeForm
		if contentType != "" {
			ct = contentType
		}
		body = content.NewBytes(data).WithContentType(ct)
	} else if contentType != "" {
		return nil, "", fmt.Errorf("a Content-Type header needs a body (-d)")
	}

	method := strings.ToUpper(opts.method)
	if method == "" {
		method = "GET"
		if body != nil || len(opts.fields) > 0 {
			method = "POST"
		}
	}
	return body, method, nil
}

func runRequest(cmd *cobra.Command, opts requestOptions, address string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := newRequest(cfg, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	body, method, err := prepareBody(r, opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	resp, sendErr := r.Send(ctx, method, address, body)
	if resp == nil {
		return sendErr
	}
	if err := writeResponse(cmd.OutOrStdout(), resp, opts); err != nil {
		return err
	}
	return sendErr
}

func writeResponse(out io.Writer, resp *client.Response, opts requestOptions) error {
	if opts.include {
		fmt.Fprintf(out, "HTTP/%s %d %s\n", resp.ProtocolVersion, resp.StatusCode, resp.Reason)
		for _, f := range resp.Header.Fields() {
			fmt.Fprintf(out, "%s: %s\n", f.Name, f.Value)
		}
		fmt.Fprintln(out)
	}
	if opts.output != "" {
		return resp.ToFile(opts.output)
	}
	data, err := resp.Bytes()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

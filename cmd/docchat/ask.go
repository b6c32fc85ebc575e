package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	chiTransport "github.com/kailas-cloud/docchat/internal/transport/chi"
)

type askOptions struct {
	Server     string
	Token      string
	DocumentID string
	Language   string
	Message    string
}

func newAskCmd() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about a document and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Message = strings.Join(args, " ")
			return ask(cmd.Context(), http.DefaultClient, &opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Server, "server", envOr("DOCCHAT_SERVER", "http://localhost:8080"), "API base URL")
	cmd.Flags().StringVar(&opts.Token, "token", os.Getenv("DOCCHAT_TOKEN"), "bearer token")
	cmd.Flags().StringVar(&opts.DocumentID, "file", "", "document id")
	cmd.Flags().StringVar(&opts.Language, "language", "", "answer language (default: server default)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// errStreamInterrupted reports an answer cut off after it started.
var errStreamInterrupted = errors.New("answer stream interrupted")

// ask posts the question and copies the streamed answer to out as it arrives.
func ask(ctx context.Context, client *http.Client, opts *askOptions, out io.Writer) error {
	body, err := json.Marshal(chiTransport.MessageRequest{
		DocumentID: opts.DocumentID,
		Message:    opts.Message,
		Language:   opts.Language,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(opts.Server, "/") + "/api/message"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr chiTransport.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Code)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("%w: %w", errStreamInterrupted, err)
	}
	_, _ = fmt.Fprintln(out)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

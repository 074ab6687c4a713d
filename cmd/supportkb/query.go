package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TylerDurden17/support-agent/internal/cli"
	"github.com/TylerDurden17/support-agent/internal/models"
)

type queryOptions struct {
	k          int
	minScore   float64
	serverURL  string
	previewLen int
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	qo := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve the passages most similar to a question",
		Long: `Retrieve the passages most similar to a question.

The question is all arguments joined by spaces, so quoting is optional.
Passages scoring above the relevance threshold are marked with *.`,
		Example: `  supportkb query How do I cancel my subscription?
  supportkb query -k 5 --min-score 0.3 "refund policy"
  supportkb query --server http://localhost:8000 reset password`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := buildQuery(args)
			if query == "" {
				return fmt.Errorf("query cannot be empty")
			}
			req := &models.RetrieveRequest{Query: query, K: qo.k}
			if cmd.Flags().Changed("min-score") {
				req.MinScore = &qo.minScore
			}

			var (
				resp *models.RetrieveResponse
				err  error
			)
			if qo.serverURL != "" {
				// The server holds the store in memory, so nothing is loaded here.
				resp, err = retrieveViaHTTP(cmd.Context(), qo.serverURL, req)
			} else {
				resp, err = retrieveLocal(cmd.Context(), opts, req)
			}
			if err != nil {
				return err
			}
			return cli.WriteResults(cmd.OutOrStdout(), resp, opts.format(), qo.previewLen)
		},
	}
	cmd.Flags().IntVarP(&qo.k, "k", "k", 0, "number of passages (default from config)")
	cmd.Flags().Float64Var(&qo.minScore, "min-score", 0, "relevance threshold (default from config)")
	cmd.Flags().StringVar(&qo.serverURL, "server", "", "query a running supportkb server instead of loading the store")
	cmd.Flags().IntVar(&qo.previewLen, "preview", 300, "characters of each passage to print in text output (0 = all)")
	return cmd
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func retrieveLocal(ctx context.Context, opts *rootOptions, req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	cfg, mgr, logger, err := opts.setup()
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	defer mgr.Close(ctx)

	if err := req.Normalize(cfg.Retrieval.DefaultK, cfg.Retrieval.MaxK); err != nil {
		return nil, err
	}
	minScore := cfg.Retrieval.MinScoreOrDefault()
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	start := time.Now()
	result, err := mgr.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		return nil, err
	}
	return &models.RetrieveResponse{
		Query:     req.Query,
		K:         req.K,
		Hits:      result.Hits,
		Relevant:  len(result.Relevant(minScore)),
		MinScore:  minScore,
		Sources:   result.Sources(),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

func retrieveViaHTTP(ctx context.Context, serverURL string, req *models.RetrieveRequest) (*models.RetrieveResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/v1/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.RetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

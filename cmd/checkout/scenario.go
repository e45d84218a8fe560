package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/utafrali/paycheckout/internal/sandbox"
	"github.com/utafrali/paycheckout/pkg/httpclient"
)

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	url := cfg.BackendURL + "/sandbox/scenario"

	// GET and PUT are both idempotent, so the retrying client is safe here.
	client := httpclient.New(httpclient.DefaultConfig())

	var resp *http.Response
	if len(args) == 0 {
		resp, err = client.Get(ctx, url)
	} else {
		body, merr := json.Marshal(sandbox.SetScenarioRequest{Scenario: args[0]})
		if merr != nil {
			return merr
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
		if rerr != nil {
			return rerr
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err = client.Do(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("sandbox scenario: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, sandbox.ServiceName)
	}

	raw, err := httpclient.ReadBody(resp)
	if err != nil {
		return err
	}
	var out sandbox.ScenarioResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode scenario response: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scenario: %s\n", out.Scenario)
	fmt.Fprintf(cmd.OutOrStdout(), "available: %v\n", out.Scenarios)
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	appsListCategory   string
	appsListRepository string
	appsListLimit      int
)

// appSummary mirrors the server's list/search view of an app.
type appSummary struct {
	AppID       string `json:"app_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Repository  string `json:"repository_source"`
}

// appsCmd represents the apps command
var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Browse the app catalog",
	Long:  `Browse the synced app catalog (list, search, show, schema).`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func printAppTable(apps []appSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tREPOSITORY")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.AppID, app.Title, app.Category, app.Repository)
	}
	w.Flush()
}

// appsListCmd represents the apps list command
var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List apps in the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if appsListCategory != "" {
			query.Set("category", appsListCategory)
		}
		if appsListRepository != "" {
			query.Set("repository", appsListRepository)
		}
		query.Set("limit", fmt.Sprintf("%d", appsListLimit))

		client := NewClient()
		resp, err := client.Get("/apps/?" + query.Encode())
		if err != nil {
			return fmt.Errorf("error fetching apps: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Total int          `json:"total"`
			Apps  []appSummary `json:"apps"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		printAppTable(apiResp.Apps)
		if apiResp.Total > len(apiResp.Apps) {
			fmt.Printf("Showing %d of %d apps.\n", len(apiResp.Apps), apiResp.Total)
		}
		return nil
	},
}

// appsSearchCmd represents the apps search command
var appsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search apps by title, description, or tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/apps/search?q=" + url.QueryEscape(args[0]))
		if err != nil {
			return fmt.Errorf("error searching apps: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Apps []appSummary `json:"apps"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		printAppTable(apiResp.Apps)
		return nil
	},
}

// appsShowCmd represents the apps show command
var appsShowCmd = &cobra.Command{
	Use:   "show [app-id]",
	Short: "Show the full record for one app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/apps/" + url.PathEscape(args[0]))
		if err != nil {
			return fmt.Errorf("error fetching app: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var app map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&app); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		PrintJSON(app)
		return nil
	},
}

// appsSchemaCmd represents the apps schema command
var appsSchemaCmd = &cobra.Command{
	Use:   "schema [app-id]",
	Short: "Show the customizable parameter schema for one app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/apps/" + url.PathEscape(args[0]) + "/schema")
		if err != nil {
			return fmt.Errorf("error fetching schema: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var schema map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&schema); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		PrintJSON(schema)
		return nil
	},
}

func init() {
	appsListCmd.Flags().StringVar(&appsListCategory, "category", "", "Filter by category")
	appsListCmd.Flags().StringVar(&appsListRepository, "repository", "", "Filter by repository name")
	appsListCmd.Flags().IntVar(&appsListLimit, "limit", 100, "Maximum number of apps to list")

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsSearchCmd)
	appsCmd.AddCommand(appsShowCmd)
	appsCmd.AddCommand(appsSchemaCmd)
	rootCmd.AddCommand(appsCmd)
}

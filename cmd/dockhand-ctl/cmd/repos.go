package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dockhand/dockhand/internal/api"
	"github.com/spf13/cobra"
)

var (
	reposAddBranch   string
	reposAddPriority int
)

// reposCmd represents the repos command
var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage app store repositories",
	Long:  `Manage the git repositories the catalog is built from (list, add, remove, enable, disable, sync).`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// reposListCmd represents the repos list command
var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/api/v1/repositories/")
		if err != nil {
			return fmt.Errorf("error fetching repositories: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Repositories []api.RepositorySource `json:"repositories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tURL\tBRANCH\tENABLED\tPRIORITY\tLAST SYNC")
		for _, repo := range apiResp.Repositories {
			lastSync := "never"
			if !repo.LastSynced.IsZero() {
				lastSync = repo.LastSynced.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%s\n",
				repo.ID, repo.Name, repo.URL, repo.Branch, repo.Enabled, repo.Priority, lastSync)
		}
		w.Flush()

		return nil
	},
}

// reposAddCmd represents the repos add command
var reposAddCmd = &cobra.Command{
	Use:   "add [name] [url]",
	Short: "Register a new repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/", api.RepositoryCreate{
			Name:     args[0],
			URL:      args[1],
			Branch:   reposAddBranch,
			Priority: reposAddPriority,
		})
		if err != nil {
			return fmt.Errorf("error adding repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			return CheckResponse(resp)
		}

		fmt.Println("Repository added successfully.")
		return nil
	},
}

// reposRemoveCmd represents the repos remove command
var reposRemoveCmd = &cobra.Command{
	Use:   "remove [repo-id]",
	Short: "Remove a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Delete("/api/v1/repositories/" + args[0])
		if err != nil {
			return fmt.Errorf("error removing repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository removed successfully.")
		return nil
	},
}

func setRepoEnabled(repoID string, enabled bool) error {
	client := NewClient()
	resp, err := client.Put("/api/v1/repositories/"+repoID, api.RepositoryUpdate{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("error updating repository: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CheckResponse(resp)
	}
	return nil
}

// reposEnableCmd represents the repos enable command
var reposEnableCmd = &cobra.Command{
	Use:   "enable [repo-id]",
	Short: "Enable a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setRepoEnabled(args[0], true); err != nil {
			return err
		}
		fmt.Println("Repository enabled.")
		return nil
	},
}

// reposDisableCmd represents the repos disable command
var reposDisableCmd = &cobra.Command{
	Use:   "disable [repo-id]",
	Short: "Disable a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setRepoEnabled(args[0], false); err != nil {
			return err
		}
		fmt.Println("Repository disabled.")
		return nil
	},
}

// reposSyncCmd represents the repos sync command
var reposSyncCmd = &cobra.Command{
	Use:   "sync [repo-id]",
	Short: "Force sync a repository",
	Long:  `Trigger an immediate git reconcile and catalog rescan for one repository.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Post("/api/v1/repositories/"+args[0]+"/sync", nil)
		if err != nil {
			return fmt.Errorf("error syncing repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var result struct {
			Status     string `json:"status"`
			Message    string `json:"message"`
			AppsLoaded int    `json:"apps_loaded"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}
		if result.Status != "success" {
			return fmt.Errorf("%s", result.Message)
		}

		fmt.Printf("%s (%d apps loaded)\n", result.Message, result.AppsLoaded)
		return nil
	},
}

func init() {
	reposAddCmd.Flags().StringVar(&reposAddBranch, "branch", "main", "Branch to track")
	reposAddCmd.Flags().IntVar(&reposAddPriority, "priority", 0, "Repository priority for app id collisions")

	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposAddCmd)
	reposCmd.AddCommand(reposRemoveCmd)
	reposCmd.AddCommand(reposEnableCmd)
	reposCmd.AddCommand(reposDisableCmd)
	reposCmd.AddCommand(reposSyncCmd)
	rootCmd.AddCommand(reposCmd)
}

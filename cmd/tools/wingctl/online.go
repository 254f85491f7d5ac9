package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/wingchat/backend/internal/handler/chat"
	chatModel "github.com/zhouzirui/wingchat/backend/internal/model/chat"
)

var replyCmd = &cobra.Command{
	Use:   "reply [request-json]",
	Short: "Generate a chat reply with the configured model",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req chatModel.ReplyRequest
		if err := decodeRequest(cmd, args, inputFile, &req); err != nil {
			return err
		}
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		status, body := chat.New(a.Service, logger).Reply(cmd.Context(), req)
		return finish(cmd, status, body)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [request-json]",
	Short: "Score a conversation with the configured feedback model",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req chatModel.EvaluationRequest
		if err := decodeRequest(cmd, args, inputFile, &req); err != nil {
			return err
		}
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		status, body := chat.New(a.Service, logger).Feedback(cmd.Context(), req)
		return finish(cmd, status, body)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models installed on the Ollama server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		if a.Lister == nil {
			return fmt.Errorf("provider %s cannot list models", a.Health.Provider)
		}
		models, err := a.Lister.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), m); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	replyCmd.Flags().StringVarP(&inputFile, "file", "f", "", "read the request from file instead of args or stdin")
	evaluateCmd.Flags().StringVarP(&inputFile, "file", "f", "", "read the request from file instead of args or stdin")
}

// finish prints the envelope and turns a non-200 status into a command error.
func finish(cmd *cobra.Command, status int, body any) error {
	if err := printJSON(cmd, body); err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("request failed with status %d", status)
	}
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/wingchat/backend/internal/model/chat"
	"github.com/zhouzirui/wingchat/backend/internal/model/persona"
	"github.com/zhouzirui/wingchat/backend/internal/service/feedback"
	"github.com/zhouzirui/wingchat/backend/internal/service/prompt"
	"github.com/zhouzirui/wingchat/backend/internal/service/reply"
)

var (
	policyFlag    string
	botNameFlag   string
	speakerFlag   string
	inputFile     string
	templatesFlag string
	kindFlag      string
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess [text]",
	Short: "Clean raw model output the way chat replies are cleaned",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := reply.ParsePolicy(policyFlag)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd, args, inputFile)
		if err != nil {
			return err
		}
		p := reply.NewProcessor(reply.WithPolicy(policy), reply.WithBotNames(botNameFlag))
		var speakers []string
		if speakerFlag != "" {
			speakers = append(speakers, speakerFlag)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), p.Process(raw, speakers...))
		return err
	},
}

var parseFeedbackCmd = &cobra.Command{
	Use:   "parse-feedback [file]",
	Short: "Parse a rubric answer into the structured evaluation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := inputFile
		if len(args) == 1 {
			path = args[0]
		}
		raw, err := readInput(cmd, nil, path)
		if err != nil {
			return err
		}
		return printJSON(cmd, feedback.NewParser(logger).Parse(raw))
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt [request-json]",
	Short: "Render the prompt a reply or feedback request would send",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := prompt.LoadTemplates(templatesFlag)
		if err != nil {
			return err
		}
		builder, err := prompt.NewBuilder(templates)
		if err != nil {
			return err
		}
		store := persona.NewMemoryStore(persona.Seed())

		var p *prompt.Prompt
		switch strings.ToLower(kindFlag) {
		case "reply":
			var req chat.ReplyRequest
			if err := decodeRequest(cmd, args, inputFile, &req); err != nil {
				return err
			}
			character, err := persona.Resolve(store, req.Character, req.CharacterID)
			if err != nil {
				return err
			}
			p, err = builder.BuildReply(cmd.Context(), prompt.ReplyInput{
				Mode: req.Mode, Goal: req.Goal, History: req.Messages, Character: character,
			})
			if err != nil {
				return err
			}
		case "feedback":
			var req chat.EvaluationRequest
			if err := decodeRequest(cmd, args, inputFile, &req); err != nil {
				return err
			}
			character, err := persona.Resolve(store, req.Character, req.CharacterID)
			if err != nil {
				return err
			}
			p, err = builder.BuildFeedback(cmd.Context(), prompt.FeedbackInput{
				Goal: req.Goal, History: req.Messages, Character: character,
			})
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown --kind %q (use reply or feedback)", kindFlag)
		}

		out := cmd.OutOrStdout()
		for _, m := range p.Messages {
			if _, err := fmt.Fprintf(out, "[%s]\n%s\n\n", m.Role, m.Content); err != nil {
				return err
			}
		}
		if p.Text != "" {
			_, err = fmt.Fprintf(out, "[raw]\n%s\n", p.Text)
		}
		return err
	},
}

func init() {
	postprocessCmd.Flags().StringVar(&policyFlag, "policy", string(reply.PolicyKeepCommas), "punctuation policy (keep-commas or strict)")
	postprocessCmd.Flags().StringVar(&botNameFlag, "bot-name", "話翼", "assistant name stripped from line starts")
	postprocessCmd.Flags().StringVar(&speakerFlag, "speaker", "", "character name stripped from line starts")
	for _, c := range []*cobra.Command{postprocessCmd, parseFeedbackCmd, promptCmd} {
		c.Flags().StringVarP(&inputFile, "file", "f", "", "read input from file instead of args or stdin")
	}
	promptCmd.Flags().StringVar(&templatesFlag, "templates", "", "YAML file overriding the built-in templates")
	promptCmd.Flags().StringVar(&kindFlag, "kind", "reply", "request kind (reply or feedback)")
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JinchengGao-Infty/Creator-Studio/config"
	"github.com/JinchengGao-Infty/Creator-Studio/engine"
	"github.com/JinchengGao-Infty/Creator-Studio/knowledge"
	"github.com/JinchengGao-Infty/Creator-Studio/presets"
	"github.com/JinchengGao-Infty/Creator-Studio/project"
	"github.com/JinchengGao-Infty/Creator-Studio/session"
)

const defaultSystemPrompt = "You are a writing assistant for a long-form fiction project. " +
	"Use the available tools to read and modify project files when asked."

func newRootCommand(settings *config.Settings) *cobra.Command {
	root := &cobra.Command{
		Use:           "creator-studio",
		Short:         "AI-assisted writing workspace",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCommand(),
		newOpenCommand(),
		newRecentCommand(),
		newChaptersCommand(),
		newSessionsCommand(),
		newPresetsCommand(),
		newProvidersCommand(),
		newKeysCommand(settings),
		newDocsCommand(),
		newIndexCommand(settings),
		newSearchCommand(settings),
		newChatCommand(settings),
		newCompleteCommand(settings),
		newModelsCommand(settings),
		newCompactCommand(settings),
	)
	return root
}

func applyTimeoutOverrides(settings *config.Settings) {
	if settings.ChatTimeoutMs > 0 {
		os.Setenv("CREATORAI_AI_CHAT_TIMEOUT_MS", fmt.Sprintf("%d", settings.ChatTimeoutMs))
	}
	if settings.CompleteTimeoutMs > 0 {
		os.Setenv("CREATORAI_AI_COMPLETE_TIMEOUT_MS", fmt.Sprintf("%d", settings.CompleteTimeoutMs))
	}
}

func buildEngine(settings *config.Settings, projectDir string) *engine.Engine {
	applyTimeoutOverrides(settings)

	e := &engine.Engine{
		Path: config.ExpandPath(settings.EnginePath),
		Events: &engine.EventHandler{
			OnToolCallStart: func(ev engine.ToolCallStartEvent) {
				fmt.Fprintf(os.Stderr, "→ %s\n", ev.Name)
			},
			OnToolCallEnd: func(ev engine.ToolCallEndEvent) {
				if ev.Error != nil {
					fmt.Fprintf(os.Stderr, "✗ %s\n", *ev.Error)
				}
			},
		},
	}
	if projectDir != "" {
		if emb, err := knowledge.NewOllamaEmbedder(settings.Embedding.Host, settings.Embedding.Model); err == nil {
			e.Knowledge = knowledge.NewIndex(projectDir, emb)
		}
	}
	return e
}

// providerPayload resolves a configured provider into the wire maps sent to
// the ai-engine, attaching the API key from the settings-selected store.
func providerPayload(settings *config.Settings, providerID string) (map[string]any, map[string]any, *config.Provider, error) {
	p, err := config.FindProvider(providerID)
	if err != nil {
		return nil, nil, nil, err
	}
	_, params, err := config.LoadProviders()
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := config.OpenCredentialStore(settings, os.Getenv("CREATORAI_SSH_PASSPHRASE"))
	if err != nil {
		return nil, nil, nil, err
	}

	provider := map[string]any{
		"providerType": p.ProviderType,
		"baseUrl":      p.BaseURL,
		"model":        p.Model,
		"apiKey":       store.Get(p.ID),
	}
	parameters := map[string]any{
		"temperature": params.Temperature,
		"topP":        params.TopP,
		"maxTokens":   params.MaxTokens,
	}
	return provider, parameters, p, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newInitCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Create a new writing project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := project.Create(args[0], name)
			if err != nil {
				return err
			}
			if err := config.TouchRecentProject(cfg.Name, args[0]); err != nil {
				return err
			}
			fmt.Printf("Created project %q at %s\n", cfg.Name, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (defaults to the directory name)")
	return cmd
}

func newOpenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a project and record it in the recent list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := project.Open(args[0])
			if err != nil {
				return err
			}
			if err := config.TouchRecentProject(cfg.Name, args[0]); err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func newRecentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List recently opened projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recent, err := config.ListRecentProjects()
			if err != nil {
				return err
			}
			return printJSON(recent)
		},
	}
}

func newChaptersCommand() *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "Manage project chapters",
	}
	cmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List chapters in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chapters, err := project.ListChapters(projectDir)
			if err != nil {
				return err
			}
			return printJSON(chapters)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <title>",
		Short: "Create an empty chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := project.CreateChapter(projectDir, args[0])
			if err != nil {
				return err
			}
			return printJSON(ch)
		},
	})

	var pattern string
	importCmd := &cobra.Command{
		Use:   "import <file.txt>",
		Short: "Split a manuscript into chapters by heading pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chapters, err := project.ImportTxt(projectDir, args[0], pattern, func(p project.ImportProgress) {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", p.Completed, p.Total, p.CurrentTitle)
			})
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d chapters\n", len(chapters))
			return nil
		},
	}
	importCmd.Flags().StringVar(&pattern, "pattern", project.DefaultChapterPattern, "chapter heading regexp")
	cmd.AddCommand(importCmd)

	return cmd
}

func newSessionsCommand() *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}
	cmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := session.List(projectDir)
			if err != nil {
				return err
			}
			return printJSON(sessions)
		},
	})

	var mode string
	var chapterID string
	newCmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var chapter *string
			if chapterID != "" {
				id, err := project.NormalizeID(chapterID)
				if err != nil {
					return err
				}
				chapter = &id
			}
			sess, err := session.Create(projectDir, args[0], engine.Mode(mode), chapter)
			if err != nil {
				return err
			}
			return printJSON(sess)
		},
	}
	newCmd.Flags().StringVar(&mode, "mode", string(engine.ModeDiscussion), "session mode (Discussion or Continue)")
	newCmd.Flags().StringVar(&chapterID, "chapter", "", "chapter the session works on")
	cmd.AddCommand(newCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <session-id> <name>",
		Short: "Rename a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Rename(projectDir, args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session.Delete(projectDir, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Search sessions by name and message content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches, err := session.SearchAll(projectDir, args[0])
			if err != nil {
				return err
			}
			return printJSON(matches)
		},
	})

	return cmd
}

func newPresetsCommand() *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage writing style presets",
	}
	cmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List presets and the active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := presets.Get(projectDir)
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate <preset-id>",
		Short: "Switch the active preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := presets.Get(projectDir)
			if err != nil {
				return err
			}
			known := false
			for _, p := range payload.Presets {
				if p.ID == args[0] {
					known = true
					break
				}
			}
			if !known {
				return fmt.Errorf("unknown preset: %s", args[0])
			}
			return presets.Save(projectDir, payload.Presets, args[0])
		},
	})

	return cmd
}

func newProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage configured AI providers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			providers, params, err := config.LoadProviders()
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"providers":  providers,
				"parameters": params,
			})
		},
	})

	var name, providerType, baseURL, model string
	addCmd := &cobra.Command{
		Use:   "add <provider-id>",
		Short: "Add or replace a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = args[0]
			}
			if err := config.UpsertProvider(config.Provider{
				ID:           args[0],
				Name:         name,
				ProviderType: providerType,
				BaseURL:      baseURL,
				Model:        model,
			}); err != nil {
				return err
			}
			fmt.Printf("Provider %q saved\n", args[0])
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "display name (defaults to the id)")
	addCmd.Flags().StringVar(&providerType, "type", config.ProviderOpenAICompatible,
		"provider type (openai-compatible, google, anthropic or gemini-cli)")
	addCmd.Flags().StringVar(&baseURL, "base-url", "", "API endpoint")
	addCmd.Flags().StringVar(&model, "model", "", "model name")
	addCmd.MarkFlagRequired("model")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <provider-id>",
		Short: "Remove a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.DeleteProvider(args[0])
		},
	})

	return cmd
}

func newKeysCommand(settings *config.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys",
	}

	openStore := func() (*config.CredentialStore, error) {
		return config.OpenCredentialStore(settings, os.Getenv("CREATORAI_SSH_PASSPHRASE"))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <provider-id> <api-key>",
		Short: "Store the API key for a provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := store.Save(config.GetConfigDir()); err != nil {
				return err
			}
			fmt.Printf("Key for %q stored (%s)\n", args[0], store.GetMethod())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <provider-id>",
		Short: "Forget the API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			return store.Save(config.GetConfigDir())
		},
	})

	return cmd
}

func newDocsCommand() *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage knowledge documents",
	}
	cmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List knowledge documents and their enablement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := knowledge.ListDocs(projectDir)
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable <doc-path>",
		Short: "Include a document in the semantic index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return knowledge.SetDocEnabled(projectDir, args[0], true)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disable <doc-path>",
		Short: "Exclude a document from the semantic index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return knowledge.SetDocEnabled(projectDir, args[0], false)
		},
	})

	return cmd
}

func newIndexCommand(settings *config.Settings) *cobra.Command {
	var projectDir string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the knowledge index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := knowledge.NewOllamaEmbedder(settings.Embedding.Host, settings.Embedding.Model)
			if err != nil {
				return err
			}
			summary, err := knowledge.NewIndex(projectDir, emb).Build(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory")
	return cmd
}

func newSearchCommand(settings *config.Settings) *cobra.Command {
	var projectDir string
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over knowledge documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			emb, err := knowledge.NewOllamaEmbedder(settings.Embedding.Host, settings.Embedding.Model)
			if err != nil {
				return err
			}
			hits, err := knowledge.NewIndex(projectDir, emb).Search(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			return printJSON(hits)
		},
	}
	cmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory")
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of results")
	return cmd
}

func newChatCommand(settings *config.Settings) *cobra.Command {
	var projectDir, providerID, mode, chapterID, sessionID string
	var allowWrite bool
	cmd := &cobra.Command{
		Use:   "chat <message...>",
		Short: "Run one chat exchange, arbitrating tool calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := project.EnsureProject(projectDir); err != nil {
				return err
			}
			provider, parameters, p, err := providerPayload(settings, providerID)
			if err != nil {
				return err
			}

			userText := strings.Join(args, " ")
			messages := []any{}
			if sessionID != "" {
				history, err := session.Messages(projectDir, sessionID)
				if err != nil {
					return err
				}
				for _, m := range history {
					messages = append(messages, map[string]any{
						"role":    strings.ToLower(string(m.Role)),
						"content": m.Content,
					})
				}
			}
			messages = append(messages, map[string]any{"role": "user", "content": userText})

			e := buildEngine(settings, projectDir)
			resp, err := e.RunChat(engine.ChatRequest{
				Provider:         provider,
				Parameters:       parameters,
				SystemPrompt:     defaultSystemPrompt,
				Messages:         messages,
				ProjectDir:       projectDir,
				Mode:             engine.Mode(mode),
				ChapterID:        chapterID,
				AllowWrite:       allowWrite,
				SingleRoundTools: p.SingleRoundTools,
			}, nil)
			if err != nil {
				return err
			}

			if sessionID != "" {
				if _, err := session.AddMessage(projectDir, sessionID, session.RoleUser, userText, nil); err != nil {
					return err
				}
				var meta *session.Metadata
				if len(resp.ToolCalls) > 0 {
					meta = &session.Metadata{ToolCalls: resp.ToolCalls}
				}
				if _, err := session.AddMessage(projectDir, sessionID, session.RoleAssistant, resp.Content, meta); err != nil {
					return err
				}
			}

			fmt.Println(resp.Content)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory")
	cmd.Flags().StringVar(&providerID, "provider", "", "configured provider id")
	cmd.Flags().StringVar(&mode, "mode", string(engine.ModeDiscussion), "chat mode (Discussion or Continue)")
	cmd.Flags().StringVar(&chapterID, "chapter", "", "chapter context for get_chapter_info")
	cmd.Flags().StringVar(&sessionID, "session", "", "persist the exchange into this session")
	cmd.Flags().BoolVar(&allowWrite, "allow-write", false, "allow write tools in Continue mode")
	cmd.MarkFlagRequired("provider")
	return cmd
}

func newCompleteCommand(settings *config.Settings) *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "complete <prompt...>",
		Short: "Run a single-shot completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, parameters, _, err := providerPayload(settings, providerID)
			if err != nil {
				return err
			}
			e := buildEngine(settings, "")
			content, err := e.RunComplete(provider, parameters, "",
				[]any{map[string]any{"role": "user", "content": strings.Join(args, " ")}}, nil)
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "configured provider id")
	cmd.MarkFlagRequired("provider")
	return cmd
}

func newModelsCommand(settings *config.Settings) *cobra.Command {
	var providerID string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models a provider endpoint exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.FindProvider(providerID)
			if err != nil {
				return err
			}
			store, err := config.OpenCredentialStore(settings, os.Getenv("CREATORAI_SSH_PASSPHRASE"))
			if err != nil {
				return err
			}
			e := buildEngine(settings, "")
			models, err := e.FetchModels(p.ProviderType, p.BaseURL, store.Get(p.ID))
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Println(m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&providerID, "provider", "", "configured provider id")
	cmd.MarkFlagRequired("provider")
	return cmd
}

func newCompactCommand(settings *config.Settings) *cobra.Command {
	var projectDir, providerID, sessionID string
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Condense a session's history into a summary message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, parameters, _, err := providerPayload(settings, providerID)
			if err != nil {
				return err
			}
			history, err := session.Messages(projectDir, sessionID)
			if err != nil {
				return err
			}
			messages := make([]any, 0, len(history))
			for _, m := range history {
				messages = append(messages, map[string]any{
					"role":    strings.ToLower(string(m.Role)),
					"content": m.Content,
				})
			}

			e := buildEngine(settings, "")
			summary, err := e.CompactHistory(provider, parameters, messages)
			if err != nil {
				return err
			}
			if _, err := session.AddMessage(projectDir, sessionID, session.RoleSystem, summary, nil); err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectDir, "project", "p", ".", "project directory")
	cmd.Flags().StringVar(&providerID, "provider", "", "configured provider id")
	cmd.Flags().StringVar(&sessionID, "session", "", "session to compact")
	cmd.MarkFlagRequired("provider")
	cmd.MarkFlagRequired("session")
	return cmd
}

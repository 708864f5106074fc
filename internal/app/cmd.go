package app

import (
	"io"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はポータルのHTTPサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandCleanup は期限切れセッションを1回削除することを示す。
	CommandCleanup Command = "cleanup"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCommand はコマンドツリーを生成する。
// サブコマンドなしで実行した場合はserveとして振る舞う。
// ログはwに出力する。
func NewRootCommand(w io.Writer) *cobra.Command {
	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := Init(w)
		if err != nil {
			return err
		}
		logStart(CommandServe, cfg)

		ctx, stop := signalContext()
		defer stop()
		return runServe(ctx, cfg)
	}

	root := &cobra.Command{
		Use:           "feedbackflow",
		Short:         "Feedback portal for managers and employees",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the portal HTTP server",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply pending session store migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := Init(w)
				if err != nil {
					return err
				}
				logStart(CommandMigrate, cfg)

				ctx, stop := signalContext()
				defer stop()
				return runMigrate(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   string(CommandCleanup),
			Short: "Delete expired sessions from the session store once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := Init(w)
				if err != nil {
					return err
				}
				logStart(CommandCleanup, cfg)

				ctx, stop := signalContext()
				defer stop()
				return runCleanup(ctx, cfg)
			},
		},
		newHealthcheckCommand(),
	)

	return root
}

// newHealthcheckCommand はhealthcheckサブコマンドを生成する。
// 軽量サブコマンドのため、設定の読み込みとログの初期化は行わない。
func newHealthcheckCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "Check that the local portal server answers /health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				url = healthcheckBaseURL()
			}
			return runHealthcheck(url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "base URL of the server (default http://localhost:$SERVER_PORT)")
	return cmd
}

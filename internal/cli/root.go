package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/Brownie44l1/lesion-api/internal/config"
	"github.com/Brownie44l1/lesion-api/internal/loader"
	"github.com/Brownie44l1/lesion-api/internal/logging"
	"github.com/Brownie44l1/lesion-api/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// app is what PersistentPreRunE prepares for every subcommand.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	closeLog func() error
}

func NewRootCommand() *cobra.Command {
	rt := &app{}

	var (
		configPath string
		logLevel   string
		assetsDir  string
	)

	rootCmd := &cobra.Command{
		Use:   "lesion",
		Short: "Skin lesion classifier",
		Long: `lesion loads a pretrained HAM10000 lesion model in the background and
classifies dermatoscopic photos into akiec, bcc, bkl, df, nv, vasc or mel.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if assetsDir != "" {
				cfg.AssetsDir = assetsDir
			}

			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.LogLevel
			logCfg.Format = cfg.LogFormat
			logCfg.File = cfg.LogFile
			logger, closeLog, err := logging.Setup(logCfg)
			if err != nil {
				return err
			}

			rt.cfg = cfg
			rt.logger = logger
			rt.closeLog = closeLog
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if rt.closeLog != nil {
				return rt.closeLog()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (or LESION_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&assetsDir, "assets", "", "Override the assets directory")

	rootCmd.AddCommand(NewServeCommand(rt))
	rootCmd.AddCommand(NewClassifyCommand(rt))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// openModel adapts model.Open to the loader's LoadFunc.
func openModel(cfg *config.Config) loader.LoadFunc {
	return func(ctx context.Context, path string) (model.Handle, error) {
		session, err := model.Open(ctx, path, model.OpenOptions{
			MetadataPath:  cfg.MetadataPath(),
			SharedLibrary: cfg.ORTLibrary,
		})
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func newLoader(rt *app, opts ...loader.Option) *loader.Loader {
	opts = append([]loader.Option{
		loader.WithTicks(rt.cfg.LoadTickStep),
		loader.WithInterval(rt.cfg.LoadTickInterval()),
		loader.WithLogger(rt.logger),
	}, opts...)
	return loader.New(openModel(rt.cfg), opts...)
}

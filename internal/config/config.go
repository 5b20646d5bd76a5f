package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dma198/pg2sqlite/internal/database"
	"github.com/dma198/pg2sqlite/internal/metrics"
	"github.com/dma198/pg2sqlite/internal/metrics/datadog"
	"github.com/dma198/pg2sqlite/internal/metrics/prompush"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "v1.0"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "pg2sqlite <pg-url> <sqlite-file> <tables>",
		Short: "Data export utility PostgreSQL => SQLite",
		Long: `Copy the named PostgreSQL tables into a freshly created SQLite file.

The destination file is deleted and recreated on every run. Rows are
committed in batches of --batchsize rows.

  pg-url       PostgreSQL connection URL: postgres://[[user]:pass]@<host>/<db>
  sqlite-file  SQLite file name
  tables       comma separated table names`,
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE:         runExport,
	}

	validateCmd = &cobra.Command{
		Use:   "validate <pg-url> <tables>",
		Short: "Validate the source connection and table definitions",
		Long: `Connect to PostgreSQL, resolve the requested tables and print the
destination schema that would be generated, without writing anything.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         runValidate,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pg2sqlite", version)
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pg2sqlite.yaml)")

	// Source flags
	rootCmd.PersistentFlags().String("schema", "public", "PostgreSQL schema to read tables from")
	rootCmd.PersistentFlags().String("source-driver", "postgres", "source driver: postgres (lib/pq) or pgx")

	// SSH tunnel flags
	rootCmd.PersistentFlags().String("sshkey", "", "Path to SSH private key file")
	rootCmd.PersistentFlags().String("sshuser", "", "SSH user")
	rootCmd.PersistentFlags().String("sshhost", "", "SSH host")
	rootCmd.PersistentFlags().Int("sshport", 22, "SSH port")
	rootCmd.PersistentFlags().String("ssh-known-hosts", "", "known_hosts file used to verify the SSH host")

	// Export flags
	rootCmd.Flags().Int("batchsize", database.DefaultBatchSize, "Max count of records in one SQLite transaction")
	rootCmd.Flags().BoolP("indexes", "i", false, "Export indexes (not implemented)")
	rootCmd.Flags().BoolP("compress", "c", false, "Compress destination file (not implemented)")
	rootCmd.Flags().String("sqlite-driver", database.DefaultSQLiteDriver, "destination driver: sqlite3 (cgo) or sqlite (pure Go)")
	rootCmd.PersistentFlags().String("type-mode", string(database.TypeModeMapped), "destination column types: mapped or verbatim")
	rootCmd.Flags().Bool("vacuum", false, "VACUUM the SQLite file after export")
	rootCmd.Flags().String("report", "", "write a JSON run report to this file")

	// Metrics flags
	rootCmd.Flags().String("metrics", "none", "metrics backend: none, prometheus or datadog")
	rootCmd.Flags().String("pushgateway", "", "Prometheus Pushgateway URL")
	rootCmd.Flags().String("statsd", "", "DogStatsD address")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	viper.BindPFlags(rootCmd.PersistentFlags())
	viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".pg2sqlite")
	}

	viper.SetEnvPrefix("PG2SQLITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Printf("config: using %s", viper.ConfigFileUsed())
	}
}

func getConfig(source string) database.Config {
	return database.Config{
		ConnectionString: source,
		Driver:           viper.GetString("source-driver"),
		Schema:           viper.GetString("schema"),
		SSHKey:           viper.GetString("sshkey"),
		SSHUser:          viper.GetString("sshuser"),
		SSHHost:          viper.GetString("sshhost"),
		SSHPort:          viper.GetInt("sshport"),
		SSHKnownHosts:    viper.GetString("ssh-known-hosts"),
	}
}

func getOptions() (database.Options, error) {
	typeMode, err := database.ParseTypeMode(viper.GetString("type-mode"))
	if err != nil {
		return database.Options{}, err
	}

	opts := database.Options{
		BatchSize:    viper.GetInt("batchsize"),
		SQLiteDriver: viper.GetString("sqlite-driver"),
		TypeMode:     typeMode,
		Indexes:      viper.GetBool("indexes"),
		Compress:     viper.GetBool("compress"),
		Vacuum:       viper.GetBool("vacuum"),
		ReportFile:   viper.GetString("report"),
	}
	return opts, validateOptions(opts)
}

func validateOptions(opts database.Options) error {
	if opts.BatchSize <= 0 {
		return fmt.Errorf("--batchsize must be > 0, got %d", opts.BatchSize)
	}
	switch opts.SQLiteDriver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unknown SQLite driver %q", opts.SQLiteDriver)
	}
	return nil
}

// SplitTables splits the comma separated table list, dropping empty names.
func SplitTables(list string) []string {
	var tables []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			tables = append(tables, name)
		}
	}
	return tables
}

func setupMetrics() (func(), error) {
	switch kind := viper.GetString("metrics"); kind {
	case "", "none":
		return func() {}, nil
	case "prometheus":
		b, err := prompush.NewBackend("pg2sqlite", viper.GetString("pushgateway"))
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:      viper.GetString("statsd"),
			Namespace: "pg2sqlite.",
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", kind)
	}

	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}, nil
}

func connect(ctx context.Context, source string, console *database.Console) (*database.Migrator, error) {
	console.Step("Connecting to PostgreSQL:\n %s ...", database.RedactURL(source))
	migrator, err := database.NewMigrator(ctx, getConfig(source), console)
	if err != nil {
		console.Fail(err)
		return nil, err
	}
	console.Step(" ")
	console.OK()
	return migrator, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	source, sqliteFile, tables := args[0], args[1], SplitTables(args[2])
	if len(tables) == 0 {
		return fmt.Errorf("no table names given")
	}

	opts, err := getOptions()
	if err != nil {
		return err
	}

	flush, err := setupMetrics()
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	defer flush()

	console := database.NewConsole(cmd.OutOrStdout())
	migrator, err := connect(cmd.Context(), source, console)
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Migrate(cmd.Context(), sqliteFile, tables, opts)
}

func runValidate(cmd *cobra.Command, args []string) error {
	source, tables := args[0], SplitTables(args[1])

	typeMode, err := database.ParseTypeMode(viper.GetString("type-mode"))
	if err != nil {
		return err
	}

	console := database.NewConsole(cmd.OutOrStdout())
	migrator, err := connect(cmd.Context(), source, console)
	if err != nil {
		return err
	}
	defer migrator.Close()

	defs, missing, err := migrator.LoadTables(cmd.Context(), tables)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, def := range defs {
		fmt.Fprintf(out, "%s\n", def.Name)
		for _, col := range def.Columns {
			fmt.Fprintf(out, "  %-30s %-30s -> %s %s\n",
				col.Name, col.SourceType, database.ColumnType(col, typeMode), col.Nullability)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%d of %d tables not found: %s", len(missing), len(tables), strings.Join(missing, ", "))
	}

	fmt.Fprintln(out, "Configuration is valid and database is accessible")
	return nil
}

package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dma198/pg2sqlite/internal/database"
	"github.com/spf13/viper"
)

func TestSplitTables(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"users", []string{"users"}},
		{"users,orders", []string{"users", "orders"}},
		{" users , ,orders,", []string{"users", "orders"}},
		{",", nil},
	}
	for _, tt := range tests {
		got := SplitTables(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitTables(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateOptions(t *testing.T) {
	good := database.Options{BatchSize: 10, SQLiteDriver: "sqlite3"}
	if err := validateOptions(good); err != nil {
		t.Fatalf("validateOptions(good): %v", err)
	}

	bad := []database.Options{
		{BatchSize: 0, SQLiteDriver: "sqlite3"},
		{BatchSize: -5, SQLiteDriver: "sqlite"},
		{BatchSize: 10, SQLiteDriver: "postgres"},
	}
	for _, o := range bad {
		if err := validateOptions(o); err == nil {
			t.Errorf("validateOptions(%+v): want error", o)
		}
	}
}

func TestFlagDefaults(t *testing.T) {
	opts, err := getOptions()
	if err != nil {
		t.Fatalf("getOptions: %v", err)
	}
	if opts.BatchSize != 10000 {
		t.Errorf("default batch size = %d, want 10000", opts.BatchSize)
	}
	if opts.Indexes || opts.Compress {
		t.Errorf("indexes/compress default on: %+v", opts)
	}
	if opts.TypeMode != database.TypeModeMapped || opts.SQLiteDriver != "sqlite3" {
		t.Errorf("unexpected defaults %+v", opts)
	}

	for _, name := range []string{"indexes", "compress"} {
		f := rootCmd.Flags().Lookup(name)
		if f == nil || f.Shorthand != name[:1] {
			t.Errorf("flag --%s missing or without -%s shorthand", name, name[:1])
		}
	}
}

func TestEnvOverridesBatchSize(t *testing.T) {
	t.Setenv("PG2SQLITE_BATCHSIZE", "25")
	initConfig()

	opts, err := getOptions()
	if err != nil {
		t.Fatalf("getOptions: %v", err)
	}
	if opts.BatchSize != 25 {
		t.Fatalf("batch size = %d, want 25 from env", opts.BatchSize)
	}
}

func TestSetupMetricsUnknownBackend(t *testing.T) {
	viper.Set("metrics", "carrier-pigeon")
	defer viper.Set("metrics", "none")

	if _, err := setupMetrics(); err == nil {
		t.Fatal("setupMetrics(unknown): want error")
	}
}

func TestRootRequiresThreeArgs(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"postgres://localhost/db", "out.db"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("Execute with two args: want error")
	}
}

func TestVersionCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
}

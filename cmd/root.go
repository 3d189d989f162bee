package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rem/internal/dse"
	"rem/internal/script"
	"rem/internal/value"
)

var (
	cfgFile  string
	noColor  bool
	testMode bool
	ivars    []string
	noRun    int
	noQueue  bool
	noTimed  bool
	fileInfo bool
	bannerTx string
)

var rootCmd = &cobra.Command{
	Use:   "rem",
	Short: "rem — a scriptable reminder engine",
	Long:  "Declarative reminder scripting: trigger-date solving, a small expression language, calendars and a timed-reminder daemon.",
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rem/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test", false, "deterministic output for tests (fixed queue ids)")
	rootCmd.PersistentFlags().StringArrayVarP(&ivars, "ivar", "i", nil, "pre-set a variable: name=expr (repeatable)")
	rootCmd.PersistentFlags().CountVarP(&noRun, "norun", "r", "disable RUN and shell(); twice also disables expressions")

	// Attach subcommands (each subcommand is in its own file)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(simpleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		dir := filepath.Join(home, ".rem")
		_ = os.MkdirAll(dir, 0o755)
		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}
	viper.SetDefault("timezone", "")
	viper.SetDefault("sysinclude", "/usr/share/rem")
	viper.SetDefault("poll_interval_min", 1)
	viper.SetDefault("max_include_depth", script.DefaultMaxIncludeDepth)
	// Safe read; if missing, proceed with defaults
	_ = viper.ReadInConfig()
	if noColor {
		DisableColors()
	}
}

// Now provides the current time in the configured timezone. Tests may
// replace it for determinism.
var Now = func() time.Time {
	loc := time.Local
	if tz := viper.GetString("timezone"); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return time.Now().In(loc)
}

// buildEngine assembles an engine from the config and shared flags,
// honoring optional DATE and TIME positional arguments.
func buildEngine(args []string) (*script.Engine, error) {
	e := script.New(os.Stdout, os.Stderr, script.NowProvider(Now))
	e.TestMode = testMode
	e.NoQueue = noQueue
	e.NoTimed = noTimed
	e.FileInfo = fileInfo
	e.SetRunDisabled(noRun)
	e.Files.SysDir = viper.GetString("sysinclude")
	e.Files.TrustedUsers = viper.GetStringSlice("trusted_users")
	if d := viper.GetInt("max_include_depth"); d > 0 {
		e.Files.MaxDepth = d
	}
	if testMode {
		_ = e.Sys.SetValue("TestMode", value.NewInt(1))
	}
	if lang := os.Getenv("REM_LANG"); lang != "" {
		// Missing translation files are not an error; English is the default.
		_ = e.Trans.LoadFile(filepath.Join(e.Files.SysDir, lang+".trans"))
	}

	// DATE and TIME overrides.
	for _, a := range args {
		v := value.Parse(a)
		switch v.Type {
		case value.Date:
			e.Today = int(v.Int)
		case value.Time:
			e.TimeOverride = int(v.Int)
		default:
			return nil, fmt.Errorf("cannot parse date/time argument: %s", a)
		}
	}

	// Variable presets: config vars.* first, then -i flags.
	for name, val := range viper.GetStringMapString("vars") {
		if err := presetVar(e, name, val); err != nil {
			return nil, err
		}
	}
	for _, iv := range ivars {
		name, val, ok := strings.Cut(iv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -i argument %q; expected name=expr", iv)
		}
		if err := presetVar(e, name, val); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func presetVar(e *script.Engine, name, val string) error {
	v := value.Parse(val)
	if strings.HasPrefix(name, "$") {
		return e.Sys.SetValue(name[1:], v)
	}
	if err := e.Vars.Set(name, v, false, "", 0); err != nil {
		return err
	}
	return e.Vars.Preserve(name)
}

// dateArgString formats a serial for messages.
func dateArgString(serial int) string { return dse.String(serial) }

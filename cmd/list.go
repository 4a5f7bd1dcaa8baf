package cmd

import (
	"fmt"
	"os"

	"maestro/internal/clock"
	"maestro/internal/config"
	"maestro/internal/formatting"
	"maestro/internal/model"
	"maestro/internal/store"

	"github.com/spf13/cobra"
)

var listConfigPath string

// listCmd represents the list command. It reads the record snapshots directly
// and renders them, without needing a running serve process.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted records",
	Long: `List records from the maestro snapshot store.

Available resource types:
  instance(s)   - Service instances with their last operation state
  binding(s)    - Service bindings
  key(s)        - Service keys

Examples:
  maestro list instances
  maestro list bindings
  maestro list keys`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"instance", "instances", "binding", "bindings", "key", "keys"},
	RunE:      runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listConfigPath, "config", "config.yaml", "Path of the YAML configuration file")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(listConfigPath)
	if err != nil {
		return err
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("no dataDir configured in %s, nothing to list", listConfigPath)
	}

	st := store.New(clock.System{})
	st.EnableSnapshots(config.NewStorage(cfg.DataDir))
	if err := st.LoadSnapshots(); err != nil {
		return err
	}

	formatter := formatting.NewTableFormatter(os.Stdout)

	switch args[0] {
	case "instance", "instances":
		formatter.FormatInstances(st.Instances())
	case "binding", "bindings":
		formatter.FormatBindings(filterKind(st.Bindings(), model.KindAppBinding))
	case "key", "keys":
		formatter.FormatBindings(filterKind(st.Bindings(), model.KindServiceKey))
	default:
		return fmt.Errorf("unknown resource type %q", args[0])
	}
	return nil
}

func filterKind(bindings []model.Binding, kind model.BindingKind) []model.Binding {
	var result []model.Binding
	for _, binding := range bindings {
		if binding.Kind == kind {
			result = append(result, binding)
		}
	}
	return result
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hatlonely/featurex/changelog"
	"github.com/hatlonely/featurex/feature"
	"github.com/hatlonely/featurex/feature/query"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/hatlonely/featurex/finance"
	"github.com/hatlonely/featurex/rdb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type rootState struct {
	configFile string
	app        *App
}

func newRootCmd() *cobra.Command {
	state := &rootState{}
	root := &cobra.Command{
		Use:           "featurex",
		Short:         "Manage personal finance feature modules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			options, err := loadAppOptions(state.configFile)
			if err != nil {
				return err
			}
			state.app, err = NewAppWithOptions(options)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.app == nil {
				return nil
			}
			return state.app.Close()
		},
	}
	root.PersistentFlags().StringVar(&state.configFile, "config", "", "config file (yaml, json, toml or ini)")

	root.AddCommand(
		newBootstrapCmd(state),
		newListCmd(state),
		newDescribeCmd(state),
		newCallCmd(state),
		newApplyCmd(state),
	)
	return root
}

func newBootstrapCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create missing tables for every feature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := finance.Bootstrap(cmd.Context(), state.app.driver); err != nil {
				return err
			}
			state.app.logger.Info("tables ready", "features", state.app.registry.Names())
			fmt.Fprintln(cmd.OutOrStdout(), "tables ready")
			return nil
		},
	}
}

func newListCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List features and their operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string][]string{}
			for _, name := range state.app.registry.Names() {
				module, _ := state.app.registry.Get(name)
				out[name] = module.Services.Names()
			}
			return writeYAML(cmd, out)
		},
	}
}

func newDescribeCmd(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <feature> [operation]",
		Short: "Print the schemas of a feature as YAML",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := lookup(state.app.registry, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return writeYAML(cmd, map[string]any{
					"schemas":  module.Schemas.Describe(),
					"services": module.Services.Describe(),
				})
			}
			set, ok := module.Schemas.Get(args[1])
			if !ok {
				return errors.Errorf("feature %s has no operation %s", args[0], args[1])
			}
			return writeYAML(cmd, set.Describe())
		},
	}
}

type callFlags struct {
	user     string
	ids      map[string]string
	data     string
	filters  string
	orderBy  []string
	page     int
	pageSize int
	validate bool
}

func newCallCmd(state *rootState) *cobra.Command {
	flags := &callFlags{}
	cmd := &cobra.Command{
		Use:   "call <feature> <operation>",
		Short: "Invoke a service and print the result as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := lookup(state.app.registry, args[0])
			if err != nil {
				return err
			}
			input, err := flags.input()
			if err != nil {
				return err
			}
			if flags.validate {
				if err := validateEndpoint(module, args[1], input); err != nil {
					return err
				}
			}
			out, err := module.Services.Call(contextOf(cmd), args[1], input)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}
	cmd.Flags().StringVar(&flags.user, "user", "", "tenant user id")
	cmd.Flags().StringToStringVar(&flags.ids, "ids", nil, "identifier values, e.g. --ids id=L1")
	cmd.Flags().StringVar(&flags.data, "data", "", "JSON object, or JSON array for createMany")
	cmd.Flags().StringVar(&flags.filters, "filters", "", "JSON object of filter values")
	cmd.Flags().StringSliceVar(&flags.orderBy, "order-by", nil, "ordering, e.g. --order-by name,createdAt:desc")
	cmd.Flags().IntVar(&flags.page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&flags.pageSize, "page-size", 0, "page size")
	cmd.Flags().BoolVar(&flags.validate, "validate", false, "check the request against the endpoint schema first")
	return cmd
}

func (f *callFlags) input() (*query.Input, error) {
	input := &query.Input{UserID: f.user}
	if len(f.ids) != 0 {
		input.IDs = make(map[string]any, len(f.ids))
		for k, v := range f.ids {
			input.IDs[k] = v
		}
	}

	if data := strings.TrimSpace(f.data); data != "" {
		if strings.HasPrefix(data, "[") {
			if err := json.Unmarshal([]byte(data), &input.Records); err != nil {
				return nil, errors.Wrap(err, "parse --data failed")
			}
		} else if err := json.Unmarshal([]byte(data), &input.Data); err != nil {
			return nil, errors.Wrap(err, "parse --data failed")
		}
	}
	if f.filters != "" {
		if err := json.Unmarshal([]byte(f.filters), &input.Filters); err != nil {
			return nil, errors.Wrap(err, "parse --filters failed")
		}
	}

	for _, item := range f.orderBy {
		field, direction, _ := strings.Cut(item, ":")
		input.Ordering = append(input.Ordering, rdb.Order{Field: field, Desc: strings.EqualFold(direction, "desc")})
	}
	if f.page != 0 || f.pageSize != 0 {
		input.Pagination = &query.Pagination{Page: f.page, PageSize: f.pageSize}
	}
	return input, nil
}

// validateEndpoint 按 HTTP 入口的方式校验：data 为 body，ids 为路径参数，filters 和分页为查询参数
func validateEndpoint(module *feature.Module, operation string, input *query.Input) error {
	values := map[string]any{}
	for k, v := range input.Filters {
		values[k] = v
	}
	if p := input.Pagination; p != nil {
		if p.Page != 0 {
			values[table.FieldPage] = p.Page
		}
		if p.PageSize != 0 {
			values[table.FieldPageSize] = p.PageSize
		}
	}
	var body map[string]any
	if input.Records != nil {
		records := make([]any, len(input.Records))
		for i, record := range input.Records {
			records[i] = record
		}
		body = map[string]any{table.FieldData: records}
	} else if input.Data != nil {
		body = input.Data
	}
	return module.Services.ValidateEndpoint(operation, body, input.IDs, values)
}

func newApplyCmd(state *rootState) *cobra.Command {
	var skipDirtyRows, watch bool
	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply a JSON-lines change file through the feature services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := changelog.NewFileLoaderWithOptions(&changelog.FileLoaderOptions{
				FilePath:      args[0],
				SkipDirtyRows: skipDirtyRows,
			})
			if err != nil {
				return err
			}
			defer loader.Close()
			handler := changelog.NewApplier(state.app.registry, state.app.logger).Handler()

			if !watch {
				n, err := loader.Load(contextOf(cmd), handler)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d changes applied\n", n)
				return nil
			}

			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := loader.Watch(ctx, handler); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipDirtyRows, "skip-dirty-rows", false, "log and skip lines that fail instead of stopping")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep applying lines appended to the file until interrupted")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func lookup(registry *feature.Registry, name string) (*feature.Module, error) {
	module, ok := registry.Get(name)
	if !ok {
		return nil, errors.Errorf("unknown feature %s, available: %s", name, strings.Join(registry.Names(), ", "))
	}
	return module, nil
}

func writeYAML(cmd *cobra.Command, v any) error {
	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return errors.Wrap(err, "encode yaml failed")
	}
	return encoder.Close()
}

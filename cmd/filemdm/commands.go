package main

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tendant/file-metadata/pkg/filemeta"
	"github.com/tendant/file-metadata/pkg/filemeta/config"
)

var errFieldsMissing = errors.New("some fields were not found")

// NewGetCommand creates the get command
func NewGetCommand() *cobra.Command {
	var saveCache bool

	cmd := &cobra.Command{
		Use:   "get <file> [key...]",
		Short: "Print metadata fields of a file",
		Long: `Print metadata fields of a file. Keys use the forms Name, 0x0112,
Namespace:Name and Namespace:0x0112. Without keys every populated
supported field is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			session, extractorID, err := openSession(cmd, rt, args[0])
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)

			var keys []filemeta.Key
			if len(args) > 1 {
				for _, arg := range args[1:] {
					key, err := filemeta.ParseKey(arg)
					if err != nil {
						return err
					}
					keys = append(keys, key)
				}
			} else {
				supported, err := session.SupportedKeys(extractorID, "")
				if err != nil {
					return err
				}
				for _, sk := range supported {
					keys = append(keys, filemeta.Qualified{Namespace: sk.Namespace, Name: sk.Name})
				}
			}

			out := cmd.OutOrStdout()
			keyColor := color.New(color.FgCyan).SprintFunc()
			missing := 0
			for _, key := range keys {
				value, found, err := session.GetMetadata(ctx, extractorID, key)
				if err != nil {
					return fmt.Errorf("%s: %w", filemeta.FormatKey(key), err)
				}
				if !found {
					if len(args) > 1 {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", filemeta.FormatKey(key))
						missing++
					}
					continue
				}
				fmt.Fprintf(out, "%s = %s\n", keyColor(filemeta.FormatKey(key)), formatValue(value))
			}

			if saveCache {
				if _, err := session.SaveMetadataToCache(ctx, extractorID); err != nil {
					return err
				}
			}
			if missing > 0 {
				return errFieldsMissing
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&saveCache, "save-cache", false, "store the extracted metadata in the cache")

	return cmd
}

// NewSetCommand creates the set command
func NewSetCommand() *cobra.Command {
	var valueType string
	var write bool
	var saveCache bool

	cmd := &cobra.Command{
		Use:   "set <file> <key> <value>",
		Short: "Change a metadata field",
		Long: `Change a metadata field and write it back to the file. Only writable
extractors such as sidecar can persist changes to disk. With --save-cache
the change is also stored in the cache, which is the only place read-only
extractors keep it.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := filemeta.ParseKey(args[1])
			if err != nil {
				return err
			}
			value, err := parseValue(args[2], valueType)
			if err != nil {
				return err
			}

			rt, err := newRuntimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			session, extractorID, err := openSession(cmd, rt, args[0])
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)

			// Load before changing so the change applies to the current content
			if _, _, err := session.GetMetadata(ctx, extractorID, nil); err != nil {
				return err
			}
			applied, err := session.SetMetadata(extractorID, key, value)
			if err != nil {
				return fmt.Errorf("%s: %w", filemeta.FormatKey(key), err)
			}
			if !applied {
				return fmt.Errorf("%s: %w", filemeta.FormatKey(key), filemeta.ErrFieldNotFound)
			}

			return persist(cmd, rt, session, extractorID, write, saveCache)
		},
	}

	cmd.Flags().StringVar(&valueType, "type", "auto", "value type: auto, string, int, float or bool")
	cmd.Flags().BoolVar(&write, "write", true, "write the change to the file when the extractor supports it")
	cmd.Flags().BoolVar(&saveCache, "save-cache", false, "store the changed metadata in the cache")

	return cmd
}

// NewRemoveCommand creates the remove command
func NewRemoveCommand() *cobra.Command {
	var write bool
	var saveCache bool

	cmd := &cobra.Command{
		Use:   "remove <file> <key...>",
		Short: "Remove metadata fields",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntimeFromFlags(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			session, extractorID, err := openSession(cmd, rt, args[0])
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)

			if _, _, err := session.GetMetadata(ctx, extractorID, nil); err != nil {
				return err
			}
			for _, arg := range args[1:] {
				key, err := filemeta.ParseKey(arg)
				if err != nil {
					return err
				}
				removed, err := session.RemoveMetadata(extractorID, key)
				if err != nil {
					return fmt.Errorf("%s: %w", filemeta.FormatKey(key), err)
				}
				if !removed {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: not present\n", filemeta.FormatKey(key))
				}
			}

			return persist(cmd, rt, session, extractorID, write, saveCache)
		},
	}

	cmd.Flags().BoolVar(&write, "write", true, "write the change to the file when the extractor supports it")
	cmd.Flags().BoolVar(&saveCache, "save-cache", false, "store the changed metadata in the cache")

	return cmd
}

// persist writes the change to the file and optionally to the cache. Without
// an explicit --write, extractors that cannot write files skip the file step.
func persist(cmd *cobra.Command, rt *config.Runtime, session *filemeta.Session, extractorID string, write, saveCache bool) error {
	ctx := contextOf(cmd)

	ex, err := rt.Manager.Extractor(extractorID)
	if err != nil {
		return err
	}
	if write && (ex.CanWriteToFile() || cmd.Flags().Changed("write")) {
		saved, err := session.SaveMetadataToFile(ctx, extractorID)
		if err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
		if saved {
			path, err := session.WritePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Written"), path)
		}
	}
	if saveCache {
		saved, err := session.SaveMetadataToCache(ctx, extractorID)
		if err != nil {
			return fmt.Errorf("failed to update cache: %w", err)
		}
		if saved {
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Cached"), session.URI())
		}
	}
	return nil
}

// NewKeysCommand creates the keys command
func NewKeysCommand() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List the keys an extractor supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := extractorFromFlags(cmd)
			if err != nil {
				return err
			}
			for _, sk := range ex.SupportedKeys(namespace) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", sk.Namespace, sk.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "only list keys of this namespace")

	return cmd
}

// NewNamespacesCommand creates the namespaces command
func NewNamespacesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "namespaces",
		Short: "List the namespaces of an extractor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := extractorFromFlags(cmd)
			if err != nil {
				return err
			}
			namespaces := ex.Resolver().Namespaces()
			sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].ID < namespaces[j].ID })
			for _, ns := range namespaces {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", ns.ID, ns.Name)
			}
			return nil
		},
	}
}

// NewEnvCommand creates the env command
func NewEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Describe the environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			help, err := config.EnvHelp()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), help)
			return nil
		},
	}
}

func extractorFromFlags(cmd *cobra.Command) (filemeta.Extractor, error) {
	rt, err := newRuntimeFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	extractorID, _ := cmd.Flags().GetString("extractor")
	return rt.Manager.Extractor(extractorID)
}

// parseValue converts a command line value. "auto" picks int, then
// float, then string.
func parseValue(s, valueType string) (any, error) {
	switch valueType {
	case "string":
		return s, nil
	case "int":
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an int", filemeta.ErrInvalidValue, s)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", filemeta.ErrInvalidValue, s)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", filemeta.ErrInvalidValue, s)
		}
		return b, nil
	case "auto", "":
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown value type %q", valueType)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []byte:
		return fmt.Sprintf("% x", v)
	case []string:
		return strings.Join(v, ", ")
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", v)
}

func hasScheme(s string) bool {
	u, err := url.Parse(s)
	return err == nil && len(u.Scheme) > 1
}

// maskPassword hides the password in connection strings
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

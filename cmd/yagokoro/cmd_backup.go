package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore the knowledge graph",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Write a versioned archive of the graph and vectors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := backup.NewManager(a.graph, a.vectors).WriteFile(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("archive written to", args[0])
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Merge an archive into the configured stores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := backup.NewManager(a.graph, a.vectors).RestoreFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(result)
		}
		fmt.Printf("restored %d entities, %d relations, %d communities, %d documents\n",
			result.Entities, result.Relations, result.Communities, result.Documents)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list <dir>",
	Short: "List the archives in a directory, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := backup.List(args[0])
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(infos)
		}
		rows := make([][]string, 0, len(infos))
		for _, info := range infos {
			rows = append(rows, []string{
				info.Path,
				info.CreatedAt.Format("2006-01-02 15:04"),
				strconv.Itoa(info.Entities),
				strconv.Itoa(info.Relations),
				fmt.Sprintf("%d KiB", info.Size/1024),
			})
		}
		printTable(fmt.Sprintf("%d archives", len(infos)),
			[]string{"Path", "Created", "Entities", "Relations", "Size"}, rows)
		return nil
	},
}

var backupValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Check an archive's version and referential integrity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		archive, err := backup.Decode(f)
		if err != nil {
			return err
		}
		fmt.Printf("valid: version %d, %d entities, %d relations, %d communities\n",
			archive.Version, len(archive.Entities), len(archive.Relations), len(archive.Communities))
		return nil
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd, backupListCmd, backupValidateCmd)
}

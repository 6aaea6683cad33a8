package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/datesheet-api/pkg/datesheet"
)

func newTemplateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the starter subject table",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "csv":
				return datesheet.WriteTableCSV(cmd.OutOrStdout(), datesheet.DefaultTable())
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]interface{}{
					"start":    "",
					"holidays": []string{},
					"classes":  datesheet.DefaultTable(),
				})
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Template format: csv or yaml")
	return cmd
}

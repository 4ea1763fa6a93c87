package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	sheetsvc "github.com/schoolhub/schoolhub/services/spreadsheet"
)

var errExportFormat = errors.New("the output file must end with .xlsx or .json")

// export writes the backup of every school to path, as a spreadsheet or as JSON.
func (cli *commandLine) export(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".xlsx" && ext != ".json" {
		return errExportFormat
	}

	data, err := cli.schoolSvc.Export(context.Background())
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	if ext == ".json" {
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		err = enc.Encode(data)
	} else {
		err = sheetsvc.Write(file, sheetsvc.Sheet{Name: "Scholen", Rows: data.Table()})
	}
	if err != nil {
		return errors.Wrap(err, "writing export")
	}
	fmt.Fprintf(cli.out, "%d schools exported to %s\n", len(data.Schools), path)
	return nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/config"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/storage"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	bigEndian bool
)

var rootCmd = &cobra.Command{
	Use:   "redocdc",
	Short: "redocdc - redo log change data capture",
	Long:  `Decodes redo log records into committed row changes and DDL`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "redocdc.yaml", "config file path")
	dumpCmd.Flags().BoolVar(&bigEndian, "big-endian", false, "vector fields are big-endian")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(dumpCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("redocdc v0.1.0-alpha")
		fmt.Println("Redo Log Change Data Capture")
	},
}

func openStorage(cfg *config.Config) (*storage.Storage, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory and seed the dictionary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := store.LoadSchema()
		switch {
		case err == nil:
			fmt.Printf("Schema already present at SCN %s\n", snap.SCN)
		case errors.Is(err, storage.ErrNotFound):
			c := catalog.New()
			if err := catalog.Seed(c); err != nil {
				return fmt.Errorf("failed to seed dictionary: %w", err)
			}
			c.MarkSaved(0)
			if err := store.SaveSchema(c.Snapshot(0)); err != nil {
				return fmt.Errorf("failed to save schema: %w", err)
			}
			fmt.Println("Seeded dictionary tables")
		default:
			return fmt.Errorf("failed to load schema: %w", err)
		}

		fmt.Printf("Data directory: %s\n", cfg.Storage.DataDir)
		fmt.Printf("Database path: %s\n", cfg.DBPath())
		return nil
	},
}

// loadCatalog restores the catalog as of the latest checkpoint, or the
// newest snapshot when there is none.
func loadCatalog(store *storage.Storage) (*catalog.Catalog, *storage.Checkpoint, error) {
	cp, err := store.LatestCheckpoint()
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var snap *catalog.Snapshot
	if cp != nil {
		snap, err = store.LoadSchemaAt(cp.SCN)
	} else {
		snap, err = store.LoadSchema()
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("no schema snapshot found, run init first")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}

	c, err := catalog.Restore(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore catalog: %w", err)
	}
	return c, cp, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display checkpoint and schema status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Printf("Source: %s (%s-endian)\n", cfg.Source.Path, cfg.Source.ByteOrder)
		fmt.Printf("Data Directory: %s\n", cfg.Storage.DataDir)
		if path, err := store.GetMetadata("source_path"); err == nil {
			fmt.Printf("Last decoded source: %s\n", path)
		}

		cp, err := store.LatestCheckpoint()
		switch {
		case err == nil:
			fmt.Printf("\nLatest checkpoint:\n")
			fmt.Printf("  SCN: %s\n", cp.SCN)
			fmt.Printf("  Position: sequence %d offset %d\n", cp.Sequence, cp.Offset)
			if cp.OldestSCN != redo.ZeroSCN && cp.OldestSCN != 0 {
				fmt.Printf("  Oldest open transaction: %s\n", cp.OldestSCN)
			}
			fmt.Printf("  Schema SCN: %s\n", cp.SchemaSCN)
			fmt.Printf("  Written: %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
		case errors.Is(err, storage.ErrNotFound):
			fmt.Printf("\nNo checkpoints yet\n")
		default:
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}

		scns, err := store.SchemaSCNs()
		if err != nil {
			return fmt.Errorf("failed to list schemas: %w", err)
		}
		fmt.Printf("\nSchema snapshots: %d\n", len(scns))
		for _, scn := range scns {
			fmt.Printf("  - %s\n", scn)
		}

		c, _, err := loadCatalog(store)
		if err != nil {
			return err
		}
		fmt.Printf("\nDictionary rows:\n")
		for _, t := range tableCounts(c) {
			fmt.Printf("  %-16s %d\n", t.name, t.rows)
		}
		return nil
	},
}

type tableCount struct {
	name string
	rows int
}

func tableCounts(c *catalog.Catalog) []tableCount {
	return []tableCount{
		{c.User.Name, c.User.Len()},
		{c.Obj.Name, c.Obj.Len()},
		{c.Tab.Name, c.Tab.Len()},
		{c.Col.Name, c.Col.Len()},
		{c.CCol.Name, c.CCol.Len()},
		{c.CDef.Name, c.CDef.Len()},
		{c.ECol.Name, c.ECol.Len()},
		{c.Seg.Name, c.Seg.Len()},
		{c.DeferredStg.Name, c.DeferredStg.Len()},
		{c.TabPart.Name, c.TabPart.Len()},
		{c.TabComPart.Name, c.TabComPart.Len()},
		{c.TabSubPart.Name, c.TabSubPart.Len()},
	}
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [OWNER[.TABLE]]",
	Short: "List tables known to the dictionary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		c, _, err := loadCatalog(store)
		if err != nil {
			return err
		}

		var owner, table string
		if len(args) > 0 {
			owner, table, _ = strings.Cut(strings.ToUpper(args[0]), ".")
		}

		found := 0
		for _, o := range c.Objects(owner) {
			if table != "" && o.Name != table {
				continue
			}
			found++
			printObject(os.Stdout, o)
		}
		if found == 0 {
			fmt.Println("No matching tables")
		}
		return nil
	},
}

func printObject(w io.Writer, o *catalog.Object) {
	fmt.Fprintf(w, "%s (obj %d, dataobj %d)\n", o.FullName(), o.Obj, o.DataObj)
	for _, col := range o.Columns {
		flags := ""
		if col.PKey {
			flags += " pk"
		}
		if !col.Nullable {
			flags += " not null"
		}
		if col.Guard {
			flags += " guard"
		}
		fmt.Fprintf(w, "  %3d %-30s type %d length %d%s\n", col.SegCol, col.Name, col.TypeNo, col.Length, flags)
	}
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the change vectors of a redo file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open redo file: %w", err)
		}
		defer f.Close()

		fields := redo.LittleEndian
		if bigEndian {
			fields = redo.BigEndian
		}
		return dumpRecords(os.Stdout, f, fields)
	},
}

func dumpRecords(w io.Writer, src io.Reader, fields redo.Reader) error {
	rr := redo.NewRecordReader(src, fields)
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "REDO RECORD - Thread:1 RBA: 0x%06x.%08x SCN: %s SUBSCN: %d %s\n",
			rec.Sequence, rec.Offset, rec.SCN, rec.SubSCN, rec.Time)
		for _, v := range rec.Vectors {
			op, err := opcode.Decode(fields, v)
			if err != nil {
				fmt.Fprintf(w, "CHANGE %s: decode error: %v\n", v.OpString(), err)
				continue
			}
			op.Dump(w)
		}
		fmt.Fprintln(w)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

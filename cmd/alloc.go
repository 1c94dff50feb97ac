package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/aegisos/kernel/internal/bat"
	"github.com/aegisos/kernel/internal/config"
	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/aegisos/kernel/internal/diskvol"
	"github.com/aegisos/kernel/internal/filedisk"
	"github.com/aegisos/kernel/internal/logging"
	"github.com/spf13/cobra"
)

var allocCount int

var allocDebugCmd = &cobra.Command{
	Use:   "alloc-debug <volume-file>",
	Short: "Run an allocate/free cycle against a mounted volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logLevel := cfg.LogLevel
		if GetVerbose() {
			logLevel = "debug"
		}
		log, err := logging.New(cfg.LogPath, "aegisctl-alloc-debug", logLevel)
		if err != nil {
			return err
		}
		defer log.Close()

		path := args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.StorageRoot, path)
		}

		drv := filedisk.New(map[int]filedisk.Config{0: {Path: path}})
		mgr := diskvol.New()
		dbf := dbuf.New(cfg.RealPages, mgr)

		vol, st := mgr.PVAssign(0, drv, 0)
		if !st.OK() {
			return fmt.Errorf("pv_assign: %v", st)
		}
		if st := mgr.PVMount(vol, 0); !st.OK() {
			return fmt.Errorf("pv_mount: %v", st)
		}
		if st := mgr.LVMount(vol, 0); !st.OK() {
			return fmt.Errorf("lv_mount: %v", st)
		}

		v, st := bat.Mount(dbf, vol, bat.MountOptions{NodeID: cfg.NodeID})
		if !st.OK() {
			return fmt.Errorf("mount: %v", st)
		}
		if v.Salvaged() {
			log.Warn("mounted volume needed salvaging", logging.Field("path", path))
		}

		before := v.FreeBlocks()
		blocks, st := v.Allocate(0, allocCount, false)
		if !st.OK() {
			return fmt.Errorf("allocate: %v", st)
		}
		if !GetQuiet() {
			fmt.Fprintf(c.OutOrStdout(), "allocated %d blocks: %v (free %d -> %d)\n",
				len(blocks), blocks, before, v.FreeBlocks())
		}

		if st := v.Free(blocks, false); !st.OK() {
			return fmt.Errorf("free: %v", st)
		}
		if !GetQuiet() {
			fmt.Fprintf(c.OutOrStdout(), "freed back to %d (matches starting free: %v)\n",
				v.FreeBlocks(), v.FreeBlocks() == before)
		}

		dbf.UpdateVol(vol)
		if st := mgr.Dismount(vol, 0, nil); !st.OK() {
			return fmt.Errorf("dismount: %v", st)
		}
		log.Info("volume dismounted", logging.Field("path", path), logging.Field("lv", vol))
		return nil
	},
}

func init() {
	allocDebugCmd.Flags().IntVar(&allocCount, "count", 10, "number of blocks to allocate then free")
	rootCmd.AddCommand(allocDebugCmd)
}

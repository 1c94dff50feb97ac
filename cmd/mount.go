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

var mountFormat bool
var mountTotalBlocks uint32

var mountCmd = &cobra.Command{
	Use:   "mount <volume-file>",
	Short: "Mount a file-backed volume and report its BAT state",
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
		log, err := logging.New(cfg.LogPath, "aegisctl-mount", logLevel)
		if err != nil {
			return err
		}
		defer log.Close()

		path := args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.StorageRoot, path)
		}

		drv := filedisk.New(map[int]filedisk.Config{
			0: {Path: path, Create: mountFormat, SizeBlocks: int64(mountTotalBlocks)},
		})
		mgr := diskvol.New()
		dbf := dbuf.New(cfg.RealPages, mgr)

		vol, st := mgr.PVAssign(0, drv, 0)
		if !st.OK() {
			return fmt.Errorf("pv_assign: %v", st)
		}
		if st := mgr.PVMount(vol, 0); !st.OK() {
			return fmt.Errorf("pv_mount: %v", st)
		}
		lv, st := mgr.LVAssign(vol, 0, 0)
		if !st.OK() {
			return fmt.Errorf("lv_assign: %v", st)
		}
		if st := mgr.LVMount(lv, 0); !st.OK() {
			return fmt.Errorf("lv_mount: %v", st)
		}

		if mountFormat {
			if st := bat.Format(dbf, lv, bat.FormatOptions{TotalBlocks: mountTotalBlocks}); !st.OK() {
				return fmt.Errorf("format: %v", st)
			}
		}

		v, st := bat.Mount(dbf, lv, bat.MountOptions{SalvageOK: mountFormat, NodeID: cfg.NodeID})
		if !st.OK() {
			return fmt.Errorf("mount: %v", st)
		}
		if v.Salvaged() {
			log.Warn("mounted volume needed salvaging", logging.Field("path", path))
		}
		log.Info("volume mounted", logging.Field("path", path), logging.Field("lv", lv))

		if !GetQuiet() {
			fmt.Fprintf(c.OutOrStdout(), "mounted %s: total=%d free=%d reserved=%d\n",
				path, v.TotalBlocks(), v.FreeBlocks(), v.ReservedBlocks())
		}

		dbf.UpdateVol(lv)
		if st := mgr.Dismount(lv, 0, nil); !st.OK() {
			return fmt.Errorf("dismount: %v", st)
		}
		log.Info("volume dismounted", logging.Field("path", path), logging.Field("lv", lv))
		return nil
	},
}

func init() {
	mountCmd.Flags().BoolVar(&mountFormat, "format", false, "create and format the volume file before mounting")
	mountCmd.Flags().Uint32Var(&mountTotalBlocks, "total-blocks", 1024, "total blocks to format, with --format")
	rootCmd.AddCommand(mountCmd)
}

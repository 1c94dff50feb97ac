package cmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/aegisos/kernel/internal/config"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/logging"
	"github.com/aegisos/kernel/internal/memdir"
	"github.com/aegisos/kernel/internal/procctx"
	"github.com/aegisos/kernel/internal/remfile"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the remote-file RPC server loop against local storage",
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logLevel := cfg.LogLevel
		if GetVerbose() {
			logLevel = "debug"
		}
		log, err := logging.New(cfg.LogPath, "aegisctl-serve", logLevel)
		if err != nil {
			return err
		}
		defer log.Close()

		store := memdir.New()
		root := ktypes.UID{High: 1}
		store.Root(root)

		srv := remfile.NewServer(store, remfile.NewLockTable(), procctx.NewMinter(ktypes.NodeNum(cfg.NodeID)), cfg.NodeID == cfg.MotherNode)

		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", serveAddr, err)
		}
		defer ln.Close()
		log.Info("remote-file server listening", logging.Field("addr", serveAddr))

		for {
			conn, err := ln.Accept()
			if err != nil {
				log.Error("accept failed", logging.Field("error", err))
				continue
			}
			go serveConn(conn, srv, log, ktypes.NodeNum(cfg.NodeID))
		}
	},
}

// serveConn runs the opcode dispatch loop for one client connection:
// a 4-byte length prefix, then the encoded remfile request, mirroring
// the wire framing do_request's Transport expects on the other end.
func serveConn(conn net.Conn, srv *remfile.Server, log *logging.Logger, caller ktypes.NodeNum) {
	defer conn.Close()
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		req, ok := remfile.DecodeRequest(body)
		if !ok {
			log.Warn("dropped malformed request")
			return
		}

		resp := srv.Dispatch(req, caller)

		out := resp.Encode()
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(out)))
		if _, err := conn.Write(lenBuf[:]); err != nil {
			return
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":4510", "listen address for the remote-file RPC server")
	rootCmd.AddCommand(serveCmd)
}

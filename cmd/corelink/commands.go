package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"corelink/middleware"
	"corelink/rpcmap"
)

func newIdentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ident",
		Short: "Verify the device runs a supported runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			if err := sess.CheckIdent(); err != nil {
				return err
			}
			fmt.Println("device identity OK")
			return nil
		},
	}
}

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Fetch the device log buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			text, err := sess.GetLog()
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
}

func newClockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clock {internal|external}",
		Short: "Select the device clock source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var external uint8
			switch args[0] {
			case "internal":
				external = 0
			case "external":
				external = 1
			default:
				return fmt.Errorf("clock source must be internal or external, got %q", args[0])
			}
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return sess.SwitchClock(external)
		},
	}
}

func newFlashCmd() *cobra.Command {
	flash := &cobra.Command{
		Use:   "flash",
		Short: "Operate on the device flash storage",
	}

	flash.AddCommand(&cobra.Command{
		Use:   "read <key>",
		Short: "Print the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			value, err := sess.FlashRead(args[0])
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(value)
			return err
		},
	})

	flash.AddCommand(&cobra.Command{
		Use:   "write <key> <value>",
		Short: "Store a value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return sess.FlashWrite(args[0], []byte(args[1]))
		},
	})

	flash.AddCommand(&cobra.Command{
		Use:   "erase",
		Short: "Wipe the flash storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return sess.FlashErase()
		},
	})

	flash.AddCommand(&cobra.Command{
		Use:   "remove <key>",
		Short: "Delete the entry stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return sess.FlashRemove(args[0])
		},
	})

	return flash
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <kernel.elf>",
		Short: "Upload a compiled kernel without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kernel, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sess, _, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()
			return sess.Load(kernel)
		},
	}
}

func newRunCmd() *cobra.Command {
	var rpcRate float64
	cmd := &cobra.Command{
		Use:   "run <kernel.elf>",
		Short: "Upload a kernel, run it and serve its RPC calls until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kernel, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sess, logger, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			if err := sess.CheckIdent(); err != nil {
				return err
			}
			if err := sess.Load(kernel); err != nil {
				return err
			}
			if err := sess.Run(); err != nil {
				return err
			}

			// The CLI registers only a print service; experiment frameworks
			// embed the library and register their own map.
			m := rpcmap.New()
			m.Use(middleware.Recovery(logger))
			m.Use(middleware.Logging(logger))
			if rpcRate > 0 {
				m.Use(middleware.RateLimit(rpcRate, int(rpcRate)))
			}
			m.Register(0, func(args ...string) int32 {
				for _, a := range args {
					fmt.Println(a)
				}
				return 0
			})
			return sess.Serve(m)
		},
	}
	cmd.Flags().Float64Var(&rpcRate, "rpc-rate", 0, "Max serviced RPCs per second (0 = unlimited)")
	return cmd
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/xela07ax/roby-guard/internal/codec"
	"github.com/xela07ax/roby-guard/internal/engine"
)

func newTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Build, sign, inspect and submit transactions",
	}
	cmd.AddCommand(newTxBuildCmd(), newTxSignCmd(), newTxDecodeCmd(), newTxSubmitCmd())
	return cmd
}

func newTxBuildCmd() *cobra.Command {
	var (
		file, out string
		keys      []string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a CBOR transaction from a YAML description and sign it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			tx, err := parseTxFile(data)
			if err != nil {
				return err
			}
			if tx.Message.Expiry == 0 {
				tx.Message.Expiry = time.Now().Add(ttl).Unix()
			}
			if err := signWith(tx, keys); err != nil {
				return err
			}
			return writeTx(cmd, tx, out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML transaction description")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file for the CBOR transaction")
	cmd.Flags().StringSliceVarP(&keys, "key", "k", nil, "seed files of the signers")
	cmd.Flags().DurationVar(&ttl, "ttl", 5*time.Minute, "lifetime when the file has no expiry (must not exceed the gateway replay window)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// newTxSignCmd добавляет подписи к уже собранной транзакции (мультиподпись по очереди).
func newTxSignCmd() *cobra.Command {
	var keys []string
	cmd := &cobra.Command{
		Use:   "sign <tx.cbor>",
		Short: "Add signatures to a built transaction in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := readTx(args[0])
			if err != nil {
				return err
			}
			if err := signWith(tx, keys); err != nil {
				return err
			}
			return writeTx(cmd, tx, args[0])
		},
	}
	cmd.Flags().StringSliceVarP(&keys, "key", "k", nil, "seed files of the signers")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newTxDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <tx.cbor>",
		Short: "Print a transaction in CBOR diagnostic notation and check its signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			diag, err := codec.Diagnose(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), diag)

			tx, err := engine.DecodeTransaction(data)
			if err != nil {
				return err
			}
			if _, err := tx.Verify(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "signatures: %v\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signatures: ok\nid: %s\n", tx.ID())
			return nil
		},
	}
}

func newTxSubmitCmd() *cobra.Command {
	var (
		endpoint, grpcAddr string
		simulate           bool
		timeout            time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <tx.cbor>",
		Short: "Send a transaction to robyd over HTTP or gRPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if grpcAddr != "" {
				return submitGRPC(ctx, cmd.OutOrStdout(), grpcAddr, data, simulate)
			}
			return submitHTTP(ctx, cmd.OutOrStdout(), endpoint, data, simulate)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:8080", "robyd HTTP base URL")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "robyd gRPC address (host:port), overrides --endpoint")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "run without committing")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func submitHTTP(ctx context.Context, w io.Writer, endpoint string, data []byte, simulate bool) error {
	url := strings.TrimRight(endpoint, "/") + "/v1/transactions"
	if simulate {
		url += "/simulate"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("robyd returned %s", resp.Status)
	}
	return nil
}

func submitGRPC(ctx context.Context, w io.Writer, addr string, data []byte, simulate bool) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	client := engine.NewLedgerClient(conn)
	call := client.Submit
	if simulate {
		call = client.Simulate
	}
	res, err := call(ctx, data)
	if err != nil {
		return err
	}
	out, err := protojson.Marshal(res)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}

func signWith(tx *engine.Transaction, keyFiles []string) error {
	for _, path := range keyFiles {
		priv, err := loadSigner(path)
		if err != nil {
			return err
		}
		if err := tx.Sign(priv); err != nil {
			return fmt.Errorf("sign with %s: %w", path, err)
		}
	}
	return nil
}

func readTx(path string) (*engine.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return engine.DecodeTransaction(data)
}

func writeTx(cmd *cobra.Command, tx *engine.Transaction, path string) error {
	data, err := engine.EncodeTransaction(tx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes, %d signatures)\n", tx.ID(), len(data), len(tx.Signatures))
	return nil
}

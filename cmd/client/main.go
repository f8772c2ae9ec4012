package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mavleo96/ledger-partition/internal/api"
	"github.com/mavleo96/ledger-partition/internal/cluster"
	"github.com/mavleo96/ledger-partition/internal/crypto"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"github.com/mavleo96/ledger-partition/internal/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	flagNode     string
	flagTimeout  time.Duration
	flagSecret   string
	flagTxJSON   string
	flagBlob     string
	flagFailHard bool
)

var rootCmd = &cobra.Command{
	Use:           "client",
	Short:         "Command line client for ledger nodes",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate an account secret and print its address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, address, err := crypto.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Printf("secret:  %s\naddress: %s\n", secret, address.Hex())
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "sign a tx_json offline and print the blob",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := parseTxJSON(flagTxJSON)
		if err != nil {
			return err
		}
		if _, ok := obj[txn.FieldSequence]; !ok {
			return errors.New("tx_json needs a Sequence to be signed offline")
		}
		key, err := crypto.KeyFromSecret(flagSecret)
		if err != nil {
			return err
		}
		if _, ok := obj[txn.FieldAccount]; !ok {
			account, err := crypto.AddressFromSecret(flagSecret)
			if err != nil {
				return err
			}
			obj[txn.FieldAccount] = account.Hex()
		}
		tx, err := txn.FromJSON(obj)
		if err != nil {
			return err
		}
		env, err := txn.Sign(tx, key)
		if err != nil {
			return err
		}
		fmt.Printf("hash:    %s\ntx_blob: %s\n", env.ID().Hex(), env.Hex())
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "submit a signed blob, or a tx_json to be signed by the node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{}
		switch {
		case flagBlob != "":
			params["tx_blob"] = flagBlob
		case flagTxJSON != "":
			obj, err := parseTxJSON(flagTxJSON)
			if err != nil {
				return err
			}
			params["tx_json"] = obj
			params["secret"] = flagSecret
		default:
			return errors.New("either --blob or --tx-json is required")
		}
		if flagFailHard {
			params["fail_hard"] = true
		}
		return call(api.MethodSubmit, params)
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster NAME",
	Short: "link the node to ALL, NONE, CLUSTER_A or CLUSTER_B peers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := cluster.ParseClusterID(args[0])
		if err != nil {
			return err
		}
		return call(api.MethodApplyCluster, map[string]any{"cluster": id.String()})
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "decode a signed blob and print its tx_json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := txn.DecodeHexEnvelope(flagBlob)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(map[string]any{
			"hash":    env.ID().Hex(),
			"tx_json": env.JSON(),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func adminCommand(use string, short string, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(method, map[string]any{})
		},
	}
}

func parseTxJSON(s string) (map[string]any, error) {
	if s == "" {
		return nil, errors.New("--tx-json is required")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("parse tx_json: %w", err)
	}
	return obj, nil
}

// call invokes an admin command on the node and prints the response
func call(method string, params map[string]any) error {
	in, err := structpb.NewStruct(params)
	if err != nil {
		return err
	}
	conn, err := utils.Connect(flagNode, grpc.WithUserAgent("ledger-client"))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()
	out, err := api.NewAdminClient(conn).Call(ctx, method, in)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", method, flagNode, err)
	}
	fmt.Println(protojson.MarshalOptions{Multiline: true, Indent: "  "}.Format(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagNode, "node", "localhost:5001", "address of the node")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "request timeout")

	signCmd.Flags().StringVar(&flagSecret, "secret", "", "hex account secret")
	signCmd.Flags().StringVar(&flagTxJSON, "tx-json", "", "transaction as a JSON object")
	_ = signCmd.MarkFlagRequired("secret")
	_ = signCmd.MarkFlagRequired("tx-json")

	submitCmd.Flags().StringVar(&flagBlob, "blob", "", "hex encoded signed transaction")
	submitCmd.Flags().StringVar(&flagTxJSON, "tx-json", "", "transaction as a JSON object, signed by the node")
	submitCmd.Flags().StringVar(&flagSecret, "secret", "", "hex account secret used with --tx-json")
	submitCmd.Flags().BoolVar(&flagFailHard, "fail-hard", false, "do not retry or relay a transaction that fails")
	submitCmd.MarkFlagsMutuallyExclusive("blob", "tx-json")

	decodeCmd.Flags().StringVar(&flagBlob, "blob", "", "hex encoded signed transaction")
	_ = decodeCmd.MarkFlagRequired("blob")

	rootCmd.AddCommand(
		keygenCmd,
		signCmd,
		submitCmd,
		decodeCmd,
		clusterCmd,
		adminCommand("attack", "start a partition attack session", api.MethodAttack),
		adminCommand("unfreeze", "end the active attack session", api.MethodUnfreeze),
		adminCommand("status", "show the current or last attack session", api.MethodAttackStatus),
		adminCommand("info", "show node id, consensus phase and linked peers", api.MethodServerInfo),
		adminCommand("ledger", "show balances and sequences of the node's ledger", api.MethodLedgerState),
		adminCommand("reset", "restore the node's ledger to genesis", api.MethodLedgerReset),
	)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

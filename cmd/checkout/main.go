package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/utafrali/paycheckout/internal/app"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "checkout",
		Short: "Run scripted payments through the card and wallet rails",
		Long: `Drive the checkout's payment rails against an order backend.

Provider widgets are simulated; the order backend is real. Point it at a
sandbox backend (cmd/sandbox) to walk through each scripted scenario.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("backend", "", "Order backend base URL (overrides BACKEND_BASE_URL)")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("expect", "", "Fail unless every rail settles with this outcome kind")

	rootCmd.AddCommand(cardCmd())
	rootCmd.AddCommand(buttonsCmd())
	rootCmd.AddCommand(walletCmd())
	rootCmd.AddCommand(allCmd())
	rootCmd.AddCommand(preflightCmd())
	rootCmd.AddCommand(scenarioCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Pay once with the hosted card fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.SmokeOptions{
				FormInvalid:   mustBool(cmd, "form-invalid"),
				CardTokenUsed: mustBool(cmd, "card-token-used"),
				NoRestart:     mustBool(cmd, "no-restart"),
			}
			return runSmoke(cmd, opts, app.SmokeCard)
		},
	}

	cmd.Flags().Bool("form-invalid", false, "Report the card number and expiry as invalid")
	cmd.Flags().Bool("card-token-used", false, "Pay with a vaulted card token")
	cmd.Flags().Bool("no-restart", false, "Offer no restart after an instrument decline")

	return cmd
}

func buttonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buttons",
		Short: "Pay once through the PayPal buttons",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.SmokeOptions{
				CardTokenUsed: mustBool(cmd, "card-token-used"),
				NoRestart:     mustBool(cmd, "no-restart"),
				PopupError:    mustBool(cmd, "popup-error"),
			}
			return runSmoke(cmd, opts, app.SmokeButtons)
		},
	}

	cmd.Flags().Bool("card-token-used", false, "Pay with a vaulted card token")
	cmd.Flags().Bool("no-restart", false, "Offer no restart after an instrument decline")
	cmd.Flags().Bool("popup-error", false, "Fail the buyer's popup after the order is created")

	return cmd
}

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Pay once through the Apple Pay sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := app.SmokeOptions{
				WalletIneligible:    mustBool(cmd, "ineligible"),
				WalletUnsupportedOS: mustBool(cmd, "unsupported-device"),
				MerchantRejects:     mustBool(cmd, "merchant-rejects"),
				ConfirmRejects:      mustBool(cmd, "confirm-rejects"),
				CancelWallet:        mustBool(cmd, "cancel"),
			}
			return runSmoke(cmd, opts, app.SmokeWallet)
		},
	}

	cmd.Flags().Bool("ineligible", false, "Report the merchant as not eligible for wallet payments")
	cmd.Flags().Bool("unsupported-device", false, "Report a device that cannot make wallet payments")
	cmd.Flags().Bool("merchant-rejects", false, "Fail merchant validation")
	cmd.Flags().Bool("confirm-rejects", false, "Reject the payment token when confirming the order")
	cmd.Flags().Bool("cancel", false, "Dismiss the sheet instead of authorizing")

	return cmd
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Pay once on every rail with default scripting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmoke(cmd, app.SmokeOptions{}, app.SmokeCard, app.SmokeButtons, app.SmokeWallet)
		},
	}
}

func preflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check the order backend and guard dependencies",
		RunE:  runPreflight,
	}
}

func scenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario [name]",
		Short: "Show or switch the sandbox backend's scripted scenario",
		Long: `Show the sandbox backend's active scenario, or switch it when a name is given.

Orders already created keep the scenario they were created under.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScenario,
	}
}

func mustBool(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

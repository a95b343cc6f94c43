package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alextreichler/shopbot/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	newUsername string
	newPassword string
)

var addUserCmd = &cobra.Command{
	Use:   "add-user",
	Short: "Create a dashboard login",
	Args:  cobra.NoArgs,
	RunE:  runAddUser,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the schema, the products and the latest orders",
	Args:  cobra.NoArgs,
	RunE:  runInspect,
}

var setLinkCmd = &cobra.Command{
	Use:   "set-link <product-id> <url>",
	Short: `Set a product's delivery link ("none" clears it)`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSetLink,
}

func init() {
	addUserCmd.Flags().StringVar(&newUsername, "username", "", "username for the new user")
	addUserCmd.Flags().StringVar(&newPassword, "password", "", "password for the new user")
	addUserCmd.MarkFlagRequired("username")
	addUserCmd.MarkFlagRequired("password")
}

func runAddUser(cmd *cobra.Command, _ []string) error {
	if strings.TrimSpace(newUsername) == "" || newPassword == "" {
		return errors.New("username and password are required")
	}
	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := db.CreateUser(cmd.Context(), newUsername, string(hashedPassword)); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "User '%s' created successfully.\n", newUsername)
	return nil
}

func runInspect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := db.Tables(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Tables:")
	for _, t := range tables {
		cols, err := db.Columns(ctx, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s (%s)\n", t, strings.Join(cols, ", "))
	}

	products, err := db.ListProducts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nProducts (%d):\n", len(products))
	for _, p := range products {
		link := p.DeliveryLink
		if link == "" {
			link = "-"
		}
		fmt.Fprintf(out, "  #%d %s $%s stock=%d link=%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock, link)
	}

	orders, err := db.ListOrders(ctx, 5, 0)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nLatest orders:")
	for _, o := range orders {
		fmt.Fprintf(out, "  #%d user=%s %s x%d $%s %s paid=%t key=%s\n",
			o.ID, o.UserID, o.ProductName, o.Quantity, o.TotalPrice.StringFixed(2), o.Status, o.PaymentConfirmed, o.ConfirmationKey)
	}
	return nil
}

func runSetLink(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id < 1 {
		return fmt.Errorf("invalid product id %q", args[0])
	}
	link := strings.TrimSpace(args[1])
	if strings.EqualFold(link, "none") {
		link = ""
	}

	db, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.UpdateDeliveryLink(cmd.Context(), id, link); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("product #%d not found", id)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Delivery link for product #%d saved.\n", id)
	return nil
}

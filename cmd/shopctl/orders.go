package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/techshop-api/internal/checkout"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/payment"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

func (c *cli) ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect, pay and deliver orders",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, nil); err != nil {
				return err
			}
			return c.requireSession()
		},
	}

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orders, err := c.api.MyOrders(cmd.Context())
			if err != nil {
				return err
			}
			return printOrders(c.out, orders)
		},
	}

	var page int
	all := &cobra.Command{
		Use:   "all",
		Short: "List every order (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.api.ListOrders(cmd.Context(), page)
			if err != nil {
				return err
			}
			if err := printOrders(c.out, res.Orders); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Page %d of %d (%d orders)\n", res.Page.Page, res.Pages, res.Total)
			return nil
		},
	}
	all.Flags().IntVar(&page, "page", 1, "result page")

	show := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an order and what can be done with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := c.api.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printOrder(c.out, o, c.session.viewer())
		},
	}

	pay := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Pay an order with the configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := c.api.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.payOrder(cmd, o)
		},
	}

	deliver := &cobra.Command{
		Use:   "deliver <order-id>",
		Short: "Mark a paid order delivered (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := c.api.GetOrder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			updated, err := c.flow.Deliver(cmd.Context(), o, c.session.viewer())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Order %s delivered.\n", updated.ID)
			return printOrder(c.out, updated, c.session.viewer())
		},
	}

	cmd.AddCommand(mine, all, show, pay, deliver)
	return cmd
}

func (c *cli) payOrder(cmd *cobra.Command, o order.Order) error {
	res := c.flow.Pay(cmd.Context(), o)
	switch res.Outcome {
	case payment.OutcomeCaptured:
	case payment.OutcomeCreated:
		return fmt.Errorf("payment %s not approved, nothing was charged: %w", res.ProviderOrderID, res.Err)
	default:
		return fmt.Errorf("payment failed: %w", res.Err)
	}
	fmt.Fprintf(c.out, "Payment %s captured.\n", res.Receipt.ID)
	return printOrder(c.out, res.Order, c.session.viewer())
}

func printOrders(w io.Writer, orders []order.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTOTAL\tPAID\tDELIVERED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.ID, o.CreatedAt.Format("2006-01-02"),
			pricing.FormatAmount(o.TotalPrice), stamp(o.IsPaid, o.PaidAt), stamp(o.IsDelivered, o.DeliveredAt))
	}
	return tw.Flush()
}

func printOrder(w io.Writer, o order.Order, viewer order.Viewer) error {
	view := checkout.View(o, viewer)
	fmt.Fprintf(w, "Order %s (%s)\n", o.ID, view.Step)
	a := o.ShippingAddress
	fmt.Fprintf(w, "Ship to:   %s, %s %s, %s\n", a.Address, a.City, a.PostalCode, a.Country)
	fmt.Fprintf(w, "Method:    %s\n", o.PaymentMethod)
	fmt.Fprintf(w, "Paid:      %s\n", stamp(o.IsPaid, o.PaidAt))
	fmt.Fprintf(w, "Delivered: %s\n", stamp(o.IsDelivered, o.DeliveredAt))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range o.Items {
		fmt.Fprintf(tw, "  %s\t%d x %s\t%s\n", it.Name, it.Quantity, pricing.FormatAmount(it.Price),
			pricing.FormatAmount(it.Price*float64(it.Quantity)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if err := printSummary(w, o.Summary()); err != nil {
		return err
	}
	switch {
	case view.CanPay:
		fmt.Fprintf(w, "Next: shopctl orders pay %s\n", o.ID)
	case view.CanDeliver:
		fmt.Fprintf(w, "Next: shopctl orders deliver %s\n", o.ID)
	}
	return nil
}

func stamp(done bool, at *time.Time) string {
	if !done {
		return "no"
	}
	if at == nil {
		return "yes"
	}
	return at.Local().Format("2006-01-02 15:04")
}

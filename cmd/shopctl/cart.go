package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/techshop-api/internal/cart"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

func (c *cli) productsCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "products [keyword]",
		Short: "Search the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := ""
			if len(args) == 1 {
				keyword = args[0]
			}
			res, err := c.api.Products(cmd.Context(), keyword, page)
			if err != nil {
				return err
			}
			if len(res.Products) == 0 {
				fmt.Fprintln(c.out, "No products found.")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tRATING")
			for _, p := range res.Products {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\n", p.ID, p.Name, pricing.FormatAmount(p.Price), p.CountInStock, p.Rating)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Page %d of %d (%d products)\n", res.Page.Page, res.Pages, res.Total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "result page")
	return cmd
}

func (c *cli) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the cart",
	}

	var qty int
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product, or set its quantity when already in the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.api.Product(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			st, err := c.cart.Dispatch(cart.AddItem{Item: cart.Item{
				ProductID:      p.ID,
				Name:           p.Name,
				Image:          p.Image,
				Price:          p.Price,
				Quantity:       qty,
				AvailableStock: p.CountInStock,
			}})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s x%d in cart.\n", p.Name, qty)
			return printCart(c.out, st)
		},
	}
	add.Flags().IntVar(&qty, "qty", 1, "quantity")

	remove := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			st, err := c.cart.Dispatch(cart.RemoveItem{ProductID: args[0]})
			if err != nil {
				return err
			}
			return printCart(c.out, st)
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cart and its totals",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return printCart(c.out, c.cart.State())
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			st, err := c.cart.Dispatch(cart.Clear{})
			if err != nil {
				return err
			}
			return printCart(c.out, st)
		},
	}

	cmd.AddCommand(add, remove, show, clearCmd)
	return cmd
}

func printCart(w io.Writer, st cart.State) error {
	if st.Empty() {
		_, err := fmt.Fprintln(w, "Your cart is empty.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tNAME\tQTY\tPRICE\tLINE")
	for _, it := range st.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.ProductID, it.Name, it.Quantity,
			pricing.FormatAmount(it.Price), pricing.FormatAmount(it.Price*float64(it.Quantity)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return printSummary(w, st.Totals)
}

func printSummary(w io.Writer, s pricing.Summary) error {
	_, err := fmt.Fprintf(w, "Items: %s  Shipping: %s  Tax: %s  Total: %s\n",
		pricing.FormatAmount(s.Subtotal), pricing.FormatAmount(s.ShippingFee),
		pricing.FormatAmount(s.Tax), pricing.FormatAmount(s.GrandTotal))
	return err
}

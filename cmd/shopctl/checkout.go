package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/techshop-api/internal/cart"
	"github.com/noah-isme/techshop-api/internal/checkout"
)

func (c *cli) checkoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Walk through shipping, payment method, review and placing the order",
	}
	cmd.AddCommand(c.shippingCmd(), c.paymentMethodCmd(), c.reviewCmd(), c.placeCmd())
	return cmd
}

// enter refuses to run a step whose prerequisites are missing.
func (c *cli) enter(step checkout.Step) error {
	if got := c.flow.Enter(step); got != step {
		return &checkout.StepError{Requested: step, Redirect: got}
	}
	return nil
}

func (c *cli) shippingCmd() *cobra.Command {
	var addr cart.Address
	cmd := &cobra.Command{
		Use:   "shipping",
		Short: "Set the shipping address",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := c.enter(checkout.StepShipping); err != nil {
				return err
			}
			addr = cart.Address{
				Address:    strings.TrimSpace(addr.Address),
				City:       strings.TrimSpace(addr.City),
				PostalCode: strings.TrimSpace(addr.PostalCode),
				Country:    strings.TrimSpace(addr.Country),
			}
			if !addr.Complete() {
				return errors.New("address, city, postal code and country are all required")
			}
			if _, err := c.cart.Dispatch(cart.SetShippingAddress{Address: addr}); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Shipping to %s, %s %s, %s.\n", addr.Address, addr.City, addr.PostalCode, addr.Country)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr.Address, "address", "", "street address")
	cmd.Flags().StringVar(&addr.City, "city", "", "city")
	cmd.Flags().StringVar(&addr.PostalCode, "postal-code", "", "postal code")
	cmd.Flags().StringVar(&addr.Country, "country", "", "country")
	return cmd
}

func (c *cli) paymentMethodCmd() *cobra.Command {
	var method string
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Choose the payment method (" + strings.Join(cart.PaymentMethods, ", ") + ")",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := c.enter(checkout.StepPayment); err != nil {
				return err
			}
			if method == "" {
				method = c.cart.PaymentMethod()
			}
			if _, err := c.cart.Dispatch(cart.SetPaymentMethod{Method: method}); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Paying with %s.\n", method)
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "", "payment method, defaults to "+cart.DefaultPaymentMethod)
	return cmd
}

func (c *cli) reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review the order before placing it",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := c.enter(checkout.StepReview); err != nil {
				return err
			}
			st := c.cart.State()
			a := st.ShippingAddress
			fmt.Fprintf(c.out, "Ship to: %s, %s %s, %s\n", a.Address, a.City, a.PostalCode, a.Country)
			fmt.Fprintf(c.out, "Method:  %s\n", st.PaymentMethod)
			return printCart(c.out, st)
		},
	}
}

func (c *cli) placeCmd() *cobra.Command {
	var pay bool
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place the order; repeating after a failure never creates a second order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			o, err := c.flow.PlaceOrder(cmd.Context())
			if errors.Is(err, checkout.ErrCartNotCleared) {
				c.log.Warn().Err(err).Msg("clear cart")
			} else if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Order %s placed.\n", o.ID)
			if !pay {
				return printOrder(c.out, o, c.session.viewer())
			}
			return c.payOrder(cmd, o)
		},
	}
	cmd.Flags().BoolVar(&pay, "pay", false, "pay right after placing the order")
	return cmd
}

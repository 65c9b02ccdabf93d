package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bankcore/internal/domain"
	"bankcore/internal/service"
)

func stocksCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "stocks",
		Short: "Manage listed stocks",
	}
	c.AddCommand(stocksCreateCmd(rt), stocksListCmd(rt), stocksUpdateCmd(rt), stocksDeleteCmd(rt), stocksAllotCmd(rt))
	return c
}

func stocksCreateCmd(rt *runtime) *cobra.Command {
	var symbol, name, price string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "List a new stock (directors only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			stock, err := a.Market.CreateStock(cmd.Context(), actorID, symbol, name, p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s\n", stock.ID, stock.Symbol, stock.Name, stock.LastPrice)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "ticker symbol")
	cmd.Flags().StringVar(&name, "name", "", "company name")
	cmd.Flags().StringVar(&price, "price", "", "initial price")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func stocksListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stocks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			stocks, err := a.Market.ListStocks(cmd.Context(), actorID)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tSYMBOL\tNAME\tLAST\tAVAILABLE")
			for _, s := range stocks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", s.ID, s.Symbol, s.Name, s.LastPrice, s.Available)
			}
			return tw.Flush()
		},
	}
}

func stocksUpdateCmd(rt *runtime) *cobra.Command {
	var name string
	var available bool
	cmd := &cobra.Command{
		Use:   "update STOCK_ID",
		Short: "Rename a stock or suspend its trading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			stock, err := a.Market.UpdateStock(cmd.Context(), actorID, args[0], name, available)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  available=%t\n", stock.Symbol, stock.Name, stock.Available)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name (unchanged when empty)")
	cmd.Flags().BoolVar(&available, "available", true, "whether clients may trade it")
	return cmd
}

func stocksDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete STOCK_ID",
		Short: "Delist a stock that was never traded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Market.DeleteStock(cmd.Context(), actorID, args[0])
		},
	}
}

func stocksAllotCmd(rt *runtime) *cobra.Command {
	var quantity int64
	cmd := &cobra.Command{
		Use:   "allot STOCK_ID CLIENT_ID",
		Short: "Issue shares directly to a client (directors only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Market.AllotShares(cmd.Context(), actorID, args[1], args[0], quantity)
		},
	}
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "number of shares")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func ordersCmd(rt *runtime) *cobra.Command {
	c := &cobra.Command{
		Use:   "orders",
		Short: "Place and follow stock orders",
	}
	c.AddCommand(ordersPlaceCmd(rt), ordersCancelCmd(rt), ordersListCmd(rt))
	return c
}

func ordersPlaceCmd(rt *runtime) *cobra.Command {
	var req service.OrderRequest
	var side, price string
	var noMatch bool
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a limit order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			req.LimitPrice = p
			req.Side = domain.OrderSide(strings.ToLower(side))

			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			if uuid.Validate(req.StockID) != nil {
				stock, err := a.Market.StockBySymbol(cmd.Context(), req.StockID)
				if err != nil {
					return err
				}
				req.StockID = stock.ID
			}
			order, err := a.Market.PlaceOrder(cmd.Context(), actorID, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "order %s placed\n", order.ID)
			if noMatch {
				return nil
			}

			trades, err := a.Market.Match(cmd.Context(), order.ID)
			if err != nil {
				return err
			}
			for _, t := range trades {
				fmt.Fprintf(out, "traded %d at %s\n", t.Quantity, t.Price)
			}
			if order, err = a.Market.GetOrder(cmd.Context(), order.ID); err == nil {
				fmt.Fprintf(out, "status %s, filled %d/%d\n", order.Status, order.Filled, order.Quantity)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.AccountID, "account", "", "account paying or receiving the cash")
	cmd.Flags().StringVar(&req.StockID, "stock", "", "stock id or symbol")
	cmd.Flags().StringVar(&side, "side", "", "buy or sell")
	cmd.Flags().Int64Var(&req.Quantity, "quantity", 0, "number of shares")
	cmd.Flags().StringVar(&price, "price", "", "limit price per share")
	cmd.Flags().BoolVar(&noMatch, "no-match", false, "leave matching to the server's engine")
	for _, f := range []string{"account", "stock", "side", "quantity", "price"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func ordersCancelCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel what is left of an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			return a.Market.CancelOrder(cmd.Context(), actorID, args[0])
		},
	}
}

func ordersListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			orders, err := a.Market.Orders(cmd.Context(), actorID)
			if err != nil {
				return err
			}
			printOrders(cmd.OutOrStdout(), orders)
			return nil
		},
	}
}

func portfolioCmd(rt *runtime) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show share holdings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, actorID, err := rt.actor(cmd.Context())
			if err != nil {
				return err
			}
			holdings, err := a.Market.Portfolio(cmd.Context(), actorID, userID)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "SYMBOL\tSTOCK\tQUANTITY")
			for _, h := range holdings {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", h.Symbol, h.StockID, h.Quantity)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "client id (staff only)")
	return cmd
}

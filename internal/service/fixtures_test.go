package service

import (
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
)

// fixture wires a LifecycleService onto a memStore pre-loaded with a small
// menu: a composite pizza (dough + cheese recipe, not itself tracked), a
// tracked bottled drink, and a few add-on ingredients.
type fixture struct {
	ms  *memStore
	svc *LifecycleService

	pizza uuid.UUID // 2.50, recipe: 1 dough + 2 cheese
	cola  uuid.UUID // 2.30, tracked directly

	dough  uuid.UUID // stock 100
	cheese uuid.UUID // stock 100, extra 0.50
	olives uuid.UUID // stock 30, extra 0.30
	basil  uuid.UUID // untracked, extra 0.20

	owner  Actor
	waiter Actor
}

func newFixture() *fixture {
	f := &fixture{
		ms:     newMemStore(),
		pizza:  uuid.New(),
		cola:   uuid.New(),
		dough:  uuid.New(),
		cheese: uuid.New(),
		olives: uuid.New(),
		basil:  uuid.New(),
	}

	f.ms.products[f.pizza] = database.Product{
		ID: f.pizza, Name: "Margherita", Price: makeNumeric("2.50"), Active: true,
	}
	f.ms.products[f.cola] = database.Product{
		ID: f.cola, Name: "Cola", Price: makeNumeric("2.30"), TrackStock: true, Active: true,
	}
	f.ms.recipes[f.pizza] = []database.ListProductIngredientsRow{
		{IngredientID: f.dough, Name: "Dough", Quantity: makeNumeric("1")},
		{IngredientID: f.cheese, Name: "Cheese", Quantity: makeNumeric("2")},
	}
	f.ms.ingredients[f.dough] = database.Ingredient{ID: f.dough, Name: "Dough"}
	f.ms.ingredients[f.cheese] = database.Ingredient{ID: f.cheese, Name: "Cheese", ExtraCost: makeNumeric("0.50")}
	f.ms.ingredients[f.olives] = database.Ingredient{ID: f.olives, Name: "Olives", ExtraCost: makeNumeric("0.30")}
	f.ms.ingredients[f.basil] = database.Ingredient{ID: f.basil, Name: "Basil", ExtraCost: makeNumeric("0.20")}

	f.ms.stock[f.cola] = database.StockItem{ID: f.cola, Name: "Cola", OnHand: makeNumeric("50")}
	f.ms.stock[f.dough] = database.StockItem{ID: f.dough, Name: "Dough", OnHand: makeNumeric("100")}
	f.ms.stock[f.cheese] = database.StockItem{ID: f.cheese, Name: "Cheese", OnHand: makeNumeric("100")}
	f.ms.stock[f.olives] = database.StockItem{ID: f.olives, Name: "Olives", OnHand: makeNumeric("30")}

	f.owner = Actor{UserID: uuid.New(), Capabilities: enum.CapabilitiesForRole(enum.UserRoleOwner)}
	f.waiter = Actor{UserID: uuid.New(), Capabilities: enum.CapabilitiesForRole(enum.UserRoleWaiter)}

	f.svc = NewLifecycleService(&memBeginner{store: f.ms}, func(db database.DBTX) Store { return f.ms })
	f.svc.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) onHand(itemID uuid.UUID) string {
	return numericToDecimal(f.ms.stock[itemID].OnHand).String()
}

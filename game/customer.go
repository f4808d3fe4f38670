package game

// spawnCustomer 在入口生成顾客：需求随机，目标为第一个有货的同类货架，否则随机货架占位
func (sim *Simulator) spawnCustomer(s *State) {
	t := sim.Tuning
	wants := FruitTypes[sim.rng.IntN(len(FruitTypes))]

	target := findStockedShelf(s, wants, -1)
	if target < 0 && len(s.Shelves) > 0 {
		target = sim.rng.IntN(len(s.Shelves))
	}

	s.Customers = append(s.Customers, Customer{
		Pos:         t.ingress(),
		Wants:       wants,
		TargetShelf: target,
		Patience:    t.CustomerPatience,
		MaxPatience: t.CustomerPatience,
		Speed:       t.CustomerSpeed,
		Size:        t.CustomerSize,
	})
}

// findStockedShelf 返回第一个存有 want 的货架下标（跳过 skip），没有则 -1
func findStockedShelf(s *State, want FruitType, skip int) int {
	for i, sh := range s.Shelves {
		if i != skip && sh.Type == want && sh.Stock > 0 {
			return i
		}
	}
	return -1
}

// updateCustomers 逆序遍历，遍历中删除离场顾客是安全的
func (sim *Simulator) updateCustomers(s *State) {
	t := sim.Tuning
	for i := len(s.Customers) - 1; i >= 0; i-- {
		c := &s.Customers[i]

		if c.Leaving {
			c.Pos.X += c.Speed * 2
			if c.Pos.X > t.MapWidth+exitMargin {
				s.Customers = append(s.Customers[:i], s.Customers[i+1:]...)
			}
			continue
		}

		c.Patience--
		if c.Patience <= 0 {
			c.Patience = 0
			c.Leaving = true
			continue
		}

		if c.AtCashier {
			sim.checkout(s, c)
		} else {
			sim.shop(s, c)
		}
	}
}

// shop 走向目标货架；到达后有货则购买并转向收银台，否则改去其它有货的货架
func (sim *Simulator) shop(s *State, c *Customer) {
	if c.TargetShelf < 0 || c.TargetShelf >= len(s.Shelves) {
		return
	}
	sh := &s.Shelves[c.TargetShelf]
	if !sim.inRange(c.Pos, sh.Pos) {
		c.Pos = moveToward(c.Pos, sh.Pos, c.Speed)
		return
	}

	if sh.Type == c.Wants && sh.Stock > 0 {
		sh.Stock--
		if sh.Stock == 0 {
			sh.Type = NoFruit
		}
		c.AtCashier = true
		return
	}
	if alt := findStockedShelf(s, c.Wants, c.TargetShelf); alt >= 0 {
		c.TargetShelf = alt
	}
}

// checkout 走向收银台；任一玩家在收银台范围内时完成交易
func (sim *Simulator) checkout(s *State, c *Customer) {
	if !sim.inRange(c.Pos, s.Cashier.Pos) {
		c.Pos = moveToward(c.Pos, s.Cashier.Pos, c.Speed)
		return
	}
	for _, p := range s.Players {
		if !sim.inRange(p.Pos, s.Cashier.Pos) {
			continue
		}
		s.Money += sim.Tuning.Price(c.Wants)
		c.Served = true
		c.Leaving = true
		return
	}
}
